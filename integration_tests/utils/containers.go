package utils

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// StartRabbit boots a throwaway broker provisioned with the given default
// credential. The password slot carries the student's bearer token, exactly
// the way the production broker expects it on connect.
func StartRabbit(ctx context.Context, t *testing.T, user, password string) (host, port string, terminate func()) {
	t.Helper()

	req := testcontainers.ContainerRequest{
		Image:        "rabbitmq:3-management",
		ExposedPorts: []string{"5672/tcp"},
		Env: map[string]string{
			"RABBITMQ_DEFAULT_USER": user,
			"RABBITMQ_DEFAULT_PASS": password,
		},
		WaitingFor: wait.ForLog("Server startup complete"),
	}
	rabbitC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "failed to start RabbitMQ container")

	host, err = rabbitC.Host(ctx)
	require.NoError(t, err)
	mapped, err := rabbitC.MappedPort(ctx, "5672")
	require.NoError(t, err)

	t.Logf("Rabbit running at %s:%s", host, mapped.Port())
	terminate = func() {
		require.NoError(t, rabbitC.Terminate(ctx))
	}
	return host, mapped.Port(), terminate
}
