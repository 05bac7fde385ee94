package docker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "edumark",
		Subsystem: "sandbox",
		Name:      "run_duration_seconds",
		Help:      "Duration of grader container runs",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"image"})

	runTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "edumark",
		Subsystem: "sandbox",
		Name:      "run_timeouts_total",
		Help:      "Grader container runs killed at the deadline",
	}, []string{"image"})

	runFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "edumark",
		Subsystem: "sandbox",
		Name:      "run_failures_total",
		Help:      "Grader container runs that could not be created, started or awaited",
	}, []string{"image"})
)

// Executor runs a command inside a throwaway container.
type Executor interface {
	Run(ctx context.Context, req ExecutionRequest) (ExecutionResult, error)
}

// ExecutionRequest describes one container run. Workspace is bind-mounted
// read-only at the executor's working directory.
type ExecutionRequest struct {
	Image         string
	Cmd           []string
	Env           []string
	Workspace     string
	MemoryLimitMB int64
	CPUShares     int64
}

// ExecutionResult summarises the outcome of a container run.
type ExecutionResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
	TimedOut bool
}

// Config groups executor configuration values.
type Config struct {
	Host          string
	MemoryLimitMB int64
	CPUShares     int64
	WorkingDir    string
	Logger        zerolog.Logger
}

// DockerExecutor implements Executor on the Docker Engine API.
type DockerExecutor struct {
	client *client.Client
	cfg    Config
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewDockerExecutor constructs a Docker backed executor.
func NewDockerExecutor(cfg Config) (*DockerExecutor, error) {
	opts := []client.Opt{client.WithAPIVersionNegotiation()}
	if cfg.Host != "" {
		opts = append(opts, client.WithHost(cfg.Host))
	} else {
		opts = append(opts, client.FromEnv)
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}

	if cfg.WorkingDir == "" {
		cfg.WorkingDir = "/workspace"
	}

	return &DockerExecutor{
		client: cli,
		cfg:    cfg,
		tracer: otel.Tracer("github.com/noah-isme/edumark-api/pkg/docker"),
		logger: cfg.Logger.With().Str("component", "docker_sandbox").Logger(),
	}, nil
}

// WorkingDir is the in-container path of the mounted workspace.
func (e *DockerExecutor) WorkingDir() string {
	return e.cfg.WorkingDir
}

// Run starts the container and waits until it exits or ctx ends. When ctx
// hits its deadline the container is killed and TimedOut is set.
func (e *DockerExecutor) Run(parent context.Context, req ExecutionRequest) (ExecutionResult, error) {
	image := req.Image
	if image == "" {
		return ExecutionResult{}, errors.New("image is required")
	}

	ctx, span := e.tracer.Start(parent, "docker.sandbox.run", trace.WithAttributes(
		attribute.String("docker.image", image),
	))
	defer span.End()

	memory := req.MemoryLimitMB
	if memory <= 0 {
		memory = e.cfg.MemoryLimitMB
	}
	shares := req.CPUShares
	if shares <= 0 {
		shares = e.cfg.CPUShares
	}

	hostCfg := &container.HostConfig{
		Resources: container.Resources{
			Memory:    memory * 1024 * 1024,
			CPUShares: shares,
		},
		NetworkMode: "bridge",
	}
	if req.Workspace != "" {
		hostCfg.Mounts = append(hostCfg.Mounts, mount.Mount{
			Type:     mount.TypeBind,
			Source:   req.Workspace,
			Target:   e.cfg.WorkingDir,
			ReadOnly: true,
		})
	}

	containerCfg := &container.Config{
		Image:        image,
		Cmd:          req.Cmd,
		Env:          req.Env,
		WorkingDir:   e.cfg.WorkingDir,
		AttachStdout: true,
		AttachStderr: true,
	}

	start := time.Now()
	result := ExecutionResult{}

	resp, err := e.client.ContainerCreate(ctx, containerCfg, hostCfg, &network.NetworkingConfig{}, nil, "")
	if err != nil {
		return result, e.fail(span, image, fmt.Errorf("container create: %w", err))
	}

	containerID := resp.ID
	defer func() {
		removeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.client.ContainerRemove(removeCtx, containerID, container.RemoveOptions{Force: true}); err != nil {
			e.logger.Error().Err(err).Str("container_id", containerID).Msg("failed to remove container")
		}
	}()

	if err := e.client.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return result, e.fail(span, image, fmt.Errorf("container start: %w", err))
	}

	statusCh, errCh := e.client.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)

	var waitErr error
	select {
	case err := <-errCh:
		waitErr = err
	case status := <-statusCh:
		result.ExitCode = int(status.StatusCode)
	case <-ctx.Done():
		waitErr = ctx.Err()
	}

	result.Duration = time.Since(start)
	runDuration.WithLabelValues(image).Observe(result.Duration.Seconds())

	if waitErr != nil {
		if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return result, e.fail(span, image, fmt.Errorf("container wait: %w", waitErr))
		}

		result.TimedOut = true
		runTimeouts.WithLabelValues(image).Inc()
		killCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := e.client.ContainerKill(killCtx, containerID, "KILL"); err != nil {
			e.logger.Error().Err(err).Str("container_id", containerID).Msg("failed to kill timed out container")
		}
		span.SetStatus(codes.Error, "sandbox run timed out")
		return result, nil
	}

	logCtx, cancelLogs := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelLogs()
	logReader, err := e.client.ContainerLogs(logCtx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		e.logger.Error().Err(err).Str("container_id", containerID).Msg("failed to fetch container logs")
		return result, nil
	}
	defer logReader.Close()

	stdout, stderr, err := splitDockerLogs(logReader)
	if err != nil {
		e.logger.Error().Err(err).Str("container_id", containerID).Msg("failed to read container logs")
		return result, nil
	}
	result.Stdout = stdout
	result.Stderr = stderr

	return result, nil
}

func (e *DockerExecutor) fail(span trace.Span, image string, err error) error {
	runFailures.WithLabelValues(image).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func splitDockerLogs(reader io.Reader) (string, string, error) {
	var stdoutBuf, stderrBuf bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdoutBuf, &stderrBuf, reader); err != nil {
		return "", "", err
	}
	return stdoutBuf.String(), stderrBuf.String(), nil
}

// Close shuts down the executor's underlying client.
func (e *DockerExecutor) Close() error {
	if e.client == nil {
		return nil
	}
	return e.client.Close()
}
