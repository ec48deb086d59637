package cmd

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"skuflow/src/core/webhook"
)

func init() {
	settingDefaultConfig()
}

func openDatabase() (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		viper.GetString("postgres.host"),
		viper.GetString("postgres.user"),
		viper.GetString("postgres.password"),
		viper.GetString("postgres.db"),
		viper.GetString("postgres.port"),
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// newAMQPPublisher and newAMQPSubscriber connect to the broker named in
// config using durable queues, so queued uploads survive a broker restart.
func newAMQPPublisher(logger watermill.LoggerAdapter) (message.Publisher, error) {
	return amqp.NewPublisher(
		amqp.NewDurableQueueConfig(viper.GetString("amqp.url")),
		logger,
	)
}

func newAMQPSubscriber(logger watermill.LoggerAdapter) (message.Subscriber, error) {
	config := amqp.NewDurableQueueConfig(viper.GetString("amqp.url"))
	config.Consume.NoRequeueOnNack = true
	return amqp.NewSubscriber(config, logger)
}

func newGoChannelPubSub(logger watermill.LoggerAdapter) *gochannel.GoChannel {
	return gochannel.NewGoChannel(gochannel.Config{}, logger)
}

func webhookConfig() webhook.Config {
	return webhook.Config{
		Timeout:     viper.GetDuration("webhook.timeout"),
		MaxAttempts: viper.GetInt("webhook.max_attempts"),
		Backoff:     viper.GetDuration("webhook.backoff"),
	}
}
