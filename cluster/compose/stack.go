package compose

import (
	"context"
	"fmt"

	"github.com/bsv-blockchain/gcsync/errors"
	"github.com/docker/go-connections/nat"
	tc "github.com/testcontainers/testcontainers-go/modules/compose"
)

// Stack is the part of a docker compose stack the cluster drives.
type Stack interface {
	Up(ctx context.Context) error
	Down(ctx context.Context) error
	StopService(ctx context.Context, service string) error
	StartService(ctx context.Context, service string) error
	// Endpoint returns host:port of the port mapped for service, it fails while the
	// service container is not running.
	Endpoint(ctx context.Context, service string, port nat.Port) (string, error)
}

// StackFactory creates the stack for one run.
type StackFactory func(files []string, identifier string, env map[string]string) (Stack, error)

type dockerStack struct {
	compose tc.ComposeStack
	env     map[string]string
}

// NewDockerStack creates a testcontainers compose stack from files.
func NewDockerStack(files []string, identifier string, env map[string]string) (Stack, error) {
	compose, err := tc.NewDockerComposeWith(tc.WithStackFiles(files...), tc.StackIdentifier(identifier))
	if err != nil {
		return nil, errors.NewClusterError("[compose] failed to create stack %s from %v", identifier, files, err)
	}

	return &dockerStack{compose: compose, env: env}, nil
}

func (s *dockerStack) Up(ctx context.Context) error {
	return s.compose.WithEnv(s.env).Up(ctx)
}

func (s *dockerStack) Down(ctx context.Context) error {
	return s.compose.Down(ctx, tc.RemoveOrphans(true), tc.RemoveVolumes(true))
}

func (s *dockerStack) StopService(ctx context.Context, service string) error {
	container, err := s.compose.ServiceContainer(ctx, service)
	if err != nil {
		return err
	}

	return container.Stop(ctx, nil)
}

func (s *dockerStack) StartService(ctx context.Context, service string) error {
	container, err := s.compose.ServiceContainer(ctx, service)
	if err != nil {
		return err
	}

	return container.Start(ctx)
}

func (s *dockerStack) Endpoint(ctx context.Context, service string, port nat.Port) (string, error) {
	container, err := s.compose.ServiceContainer(ctx, service)
	if err != nil {
		return "", err
	}

	host, err := container.Host(ctx)
	if err != nil {
		return "", err
	}

	mappedPort, err := container.MappedPort(ctx, port)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s:%s", host, mappedPort.Port()), nil
}
