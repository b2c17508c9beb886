package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/rsclabs/valve-backend/internal/api/middleware"
	"github.com/rsclabs/valve-backend/internal/apierr"
	"github.com/rsclabs/valve-backend/internal/contracts"
	"github.com/rsclabs/valve-backend/internal/services"
)

func (s *Server) handleCreateContract(c *fiber.Ctx) error {
	var prepared contracts.ValveV1PreparedContract
	if err := c.BodyParser(&prepared); err != nil {
		return apierr.Validation(err)
	}
	contract, err := s.contractService.Create(c.UserContext(), &prepared, middleware.UserFromContext(c))
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(contract)
}

func (s *Server) handleGetContract(c *fiber.Ctx) error {
	contract, err := s.contractService.FindOne(c.UserContext(), c.Params("id"), middleware.UserFromContext(c))
	if err != nil {
		return err
	}
	return c.JSON(contract)
}

func (s *Server) handleUpdateContract(c *fiber.Ctx) error {
	var prepared contracts.ValveV1PreparedContract
	if err := c.BodyParser(&prepared); err != nil {
		return apierr.Validation(err)
	}
	contract, err := s.contractService.Update(c.UserContext(), c.Params("id"), &prepared, middleware.UserFromContext(c))
	if err != nil {
		return err
	}
	return c.JSON(contract)
}

func (s *Server) handleDeleteContract(c *fiber.Ctx) error {
	if err := s.contractService.Delete(c.UserContext(), c.Params("id"), middleware.UserFromContext(c)); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handlePatchContractStatus(c *fiber.Ctx) error {
	var patch services.StatusPatch
	if err := c.BodyParser(&patch); err != nil {
		return apierr.Validation(err)
	}
	contract, err := s.contractService.PatchStatus(c.UserContext(), c.Params("id"), patch, middleware.UserFromContext(c))
	if err != nil {
		return err
	}
	return c.JSON(contract)
}

func (s *Server) handleSearchContracts(c *fiber.Ctx) error {
	var query services.SearchQuery
	if err := c.BodyParser(&query); err != nil {
		return apierr.Validation(err)
	}
	result, err := s.contractService.Search(c.UserContext(), query, middleware.UserFromContext(c))
	if err != nil {
		return err
	}
	return c.JSON(result)
}

func (s *Server) handleDeployContract(c *fiber.Ctx) error {
	deployment, err := s.deploymentService.Deploy(c.UserContext(), c.Params("id"), middleware.UserFromContext(c))
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(deployment)
}

func (s *Server) handleActiveDeployment(c *fiber.Ctx) error {
	deployment, err := s.deploymentService.ActiveDeployment(c.UserContext(), c.Params("id"), middleware.UserFromContext(c))
	if err != nil {
		return err
	}
	return c.JSON(deployment)
}
