package main

import (
	"bytes"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wms-platform/shipping-api/internal/events"
)

func TestParseOptions_Create(t *testing.T) {
	opts, err := parseOptions([]string{
		"--order-id", "O1", "--user-id", "U1", "--address", "123 Main St", "--message-id", "m-1",
	}, &bytes.Buffer{})
	require.NoError(t, err)

	assert.Equal(t, "m-1", opts.messageID)
	assert.Equal(t, "rabbitmq", opts.driver)
	assert.Equal(t, "shipping", opts.queue)

	msg, err := opts.message()
	require.NoError(t, err)
	assert.Equal(t, events.NewCreateMessage("U1", "O1", "123 Main St"), msg)

	body, err := msg.Encode()
	require.NoError(t, err)
	result := events.MustNewTranslator().Translate(body)
	require.True(t, result.OK(), "published message must translate")
	assert.Equal(t, events.OperationCreate, result.Operation())
}

func TestParseOptions_DeleteGetsRandomMessageID(t *testing.T) {
	opts, err := parseOptions([]string{"-o", "Delete", "--order-id", "O1", "--driver", "kafka", "--brokers", "a:9092,b:9092"}, &bytes.Buffer{})
	require.NoError(t, err)

	assert.NotEmpty(t, opts.messageID)
	assert.Equal(t, []string{"a:9092", "b:9092"}, opts.brokers)

	msg, err := opts.message()
	require.NoError(t, err)
	assert.Equal(t, events.NewDeleteMessage("O1"), msg)
}

func TestOptions_MessageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing order", []string{"-o", "Delete"}},
		{"create without address", []string{"--order-id", "O1", "--user-id", "U1"}},
		{"unknown operation", []string{"-o", "Upsert", "--order-id", "O1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := parseOptions(tt.args, &bytes.Buffer{})
			require.NoError(t, err)
			_, err = opts.message()
			assert.Error(t, err)
		})
	}
}

func TestParseOptions_Errors(t *testing.T) {
	_, err := parseOptions([]string{"--order-id", "O1", "extra"}, &bytes.Buffer{})
	assert.Error(t, err)

	var out bytes.Buffer
	_, err = parseOptions([]string{"--help"}, &out)
	assert.ErrorIs(t, err, pflag.ErrHelp)
	assert.Contains(t, out.String(), "--order-id")
}

func TestRun_UnknownDriver(t *testing.T) {
	err := run([]string{"-o", "Delete", "--order-id", "O1", "--driver", "sqs"}, &bytes.Buffer{})
	assert.ErrorContains(t, err, "unknown driver")
}

func TestOptions_RabbitMQConfig(t *testing.T) {
	t.Setenv("DEAD_LETTER_EXCHANGE", "shipping.dlx")

	opts, err := parseOptions([]string{"-o", "Delete", "--order-id", "O1", "--queue", "orders"}, &bytes.Buffer{})
	require.NoError(t, err)
	cfg := opts.rabbitmqConfig()
	assert.Equal(t, "orders", cfg.Queue)
	assert.Equal(t, "shipping.dlx", cfg.DeadLetterExchange)
	assert.Equal(t, "orders.dead-letter", cfg.DeadLetterQueue())

	opts, err = parseOptions([]string{"-o", "Delete", "--order-id", "O1", "--dead-letter-exchange", "other.dlx", "--dead-letter-routing-key", "rejected"}, &bytes.Buffer{})
	require.NoError(t, err)
	cfg = opts.rabbitmqConfig()
	assert.Equal(t, "other.dlx", cfg.DeadLetterExchange)
	assert.Equal(t, "rejected", cfg.DeadLetterRoutingKey)
}
