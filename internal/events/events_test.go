package events

import (
	"context"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/rsclabs/valve-backend/internal/logger"
	"github.com/rsclabs/valve-backend/internal/models"
)

type recordingReconciler struct {
	onchain []OnchainTransactionRecord
	relayer []RelayerTransactionRecord
}

func (r *recordingReconciler) HandleOnchainEvent(_ context.Context, record OnchainTransactionRecord) error {
	r.onchain = append(r.onchain, record)
	return nil
}

func (r *recordingReconciler) HandleRelayerEvent(_ context.Context, record RelayerTransactionRecord) error {
	r.relayer = append(r.relayer, record)
	return nil
}

func TestCodecRoundTrip(t *testing.T) {
	codec := NewJSONCodec()

	encoded, err := codec.Encode(OnchainTransactionRecord{
		Hash:   "0xabc",
		Chain:  models.ChainPolygon,
		Status: OnchainStatusMined,
	})
	require.NoError(t, err)

	var decoded OnchainTransactionRecord
	require.NoError(t, codec.Decode(encoded, &decoded))
	assert.Equal(t, "0xabc", decoded.Hash)
	assert.Equal(t, models.ChainPolygon, decoded.Chain)
	assert.Equal(t, OnchainStatusMined, decoded.Status)

	assert.Error(t, codec.Decode([]byte("not json"), &decoded))
}

func TestConsumerDispatch(t *testing.T) {
	rec := &recordingReconciler{}
	consumer := &Consumer{
		config: ConsumerConfig{
			OnchainTopic: "onchain",
			RelayerTopic: "relayer",
		},
		codec: NewJSONCodec(),
		rec:   rec,
		log:   logger.NewNop(),
	}
	ctx := context.Background()

	onchain, err := consumer.codec.Encode(OnchainTransactionRecord{Hash: "0x1", Status: OnchainStatusPending})
	require.NoError(t, err)
	require.NoError(t, consumer.dispatch(ctx, &sarama.ConsumerMessage{Topic: "onchain", Value: onchain}))

	relayer, err := consumer.codec.Encode(RelayerTransactionRecord{TransactionID: "tx-1", Status: RelayerStatusConfirmed})
	require.NoError(t, err)
	require.NoError(t, consumer.dispatch(ctx, &sarama.ConsumerMessage{Topic: "relayer", Value: relayer}))

	require.Len(t, rec.onchain, 1)
	assert.Equal(t, "0x1", rec.onchain[0].Hash)
	require.Len(t, rec.relayer, 1)
	assert.Equal(t, "tx-1", rec.relayer[0].TransactionID)

	assert.Error(t, consumer.dispatch(ctx, &sarama.ConsumerMessage{Topic: "other", Value: onchain}))
}

func TestProducerDrain(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.DeploymentEventRecord{}))

	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.Return.Successes = true
	mockProducer := mocks.NewSyncProducer(t, saramaConfig)
	mockProducer.ExpectSendMessageAndSucceed()
	mockProducer.ExpectSendMessageAndSucceed()

	require.NoError(t, db.Create(&[]models.DeploymentEventRecord{
		{DeploymentID: "d-1", Topic: "contract-deployed", Payload: []byte(`{"a":1}`)},
		{DeploymentID: "d-2", Topic: "contract-deploy-failed", Payload: []byte(`{"b":2}`)},
	}).Error)

	producer := &Producer{
		db:       db,
		producer: mockProducer,
		interval: time.Second,
		log:      logger.NewNop(),
	}
	require.NoError(t, producer.Drain(context.Background()))

	var unpublished int64
	require.NoError(t, db.Model(&models.DeploymentEventRecord{}).
		Where("published_at IS NULL").Count(&unpublished).Error)
	assert.Zero(t, unpublished)

	// nothing left to publish, a second drain is a no-op
	require.NoError(t, producer.Drain(context.Background()))
}
