package api

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"

	"github.com/rsclabs/valve-backend/internal/apierr"
	"github.com/rsclabs/valve-backend/internal/services"
)

type Server struct {
	app               *fiber.App
	contractService   services.ContractService
	deploymentService services.DeploymentService
}

func NewServer(contractService services.ContractService, deploymentService services.DeploymentService, auth fiber.Handler) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})

	// Add middleware
	app.Use(cors.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format:     "[${time}] ${status} - ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))

	server := &Server{
		app:               app,
		contractService:   contractService,
		deploymentService: deploymentService,
	}
	server.setupRoutes(auth)
	return server
}

func (s *Server) setupRoutes(auth fiber.Handler) {
	group := s.app.Group("/contracts", auth)

	group.Post("/search", s.handleSearchContracts)
	group.Post("/", s.handleCreateContract)
	group.Get("/:id", s.handleGetContract)
	group.Put("/:id", s.handleUpdateContract)
	group.Delete("/:id", s.handleDeleteContract)
	group.Patch("/:id/status", s.handlePatchContractStatus)
	group.Post("/:id/deployments", s.handleDeployContract)
	group.Get("/:id/deployments/active", s.handleActiveDeployment)
}

func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

func (s *Server) Shutdown() error {
	return s.app.ShutdownWithTimeout(10 * time.Second)
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

func errorHandler(c *fiber.Ctx, err error) error {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(fiber.Map{"error": fiberErr.Message})
	}
	return c.Status(apierr.StatusOf(err)).JSON(fiber.Map{
		"error": err.Error(),
		"code":  apierr.CodeOf(err),
	})
}
