// Package deployment drives the machines of a benchmark deployment: remote commands over the
// deployment's ssh wrapper, file transfer with rsync, the cassandra-stress load generator and
// the monitoring host's Prometheus.
package deployment

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/avast/retry-go"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/stressbench/stressbench/internal/common/bencherrors"
	"github.com/stressbench/stressbench/internal/common/process"
)

// CommandRunner runs local commands. *process.Exec is the production implementation.
type CommandRunner interface {
	Run(ctx context.Context, c process.Command) error
	Output(ctx context.Context, c process.Command) ([]byte, error)
}

type Options struct {
	// Directory holding the ssh and ansible-inventory wrappers.
	BinDir string
	// rsync executable.
	Rsync string
	// Number of attempts of a transfer before giving up.
	TransferAttempts uint
	// Delay before the first transfer retry. Later retries back off exponentially.
	TransferDelay time.Duration
	// How often WaitForCompactionEnd queries Prometheus.
	CompactionPollPeriod time.Duration
	// Prometheus base URL as seen from the monitoring host.
	PrometheusURL string
}

func DefaultOptions() Options {
	return Options{
		BinDir:               "bin",
		Rsync:                "rsync",
		TransferAttempts:     3,
		TransferDelay:        2 * time.Second,
		CompactionPollPeriod: 20 * time.Second,
		PrometheusURL:        "http://localhost:9090",
	}
}

// Deployment is a named set of hosts reachable through the deployment's ssh wrapper.
type Deployment struct {
	Name      string
	Inventory *Inventory
	runner    CommandRunner
	options   Options
}

func New(name string, inventory *Inventory, runner CommandRunner, options Options) (*Deployment, error) {
	if name == "" {
		return nil, errors.WithStack(&bencherrors.ErrInvalidArgument{Name: "deployment", Value: name, Message: "not provided"})
	}
	if inventory == nil || len(inventory.Servers) == 0 || len(inventory.Clients) == 0 {
		return nil, errors.WithStack(&bencherrors.ErrInvalidArgument{
			Name:    "inventory",
			Value:   name,
			Message: "needs at least one server and one client",
		})
	}
	defaults := DefaultOptions()
	if options.TransferAttempts == 0 {
		options.TransferAttempts = 1
	}
	if options.CompactionPollPeriod <= 0 {
		options.CompactionPollPeriod = defaults.CompactionPollPeriod
	}
	if options.PrometheusURL == "" {
		options.PrometheusURL = defaults.PrometheusURL
	}
	if options.Rsync == "" {
		options.Rsync = defaults.Rsync
	}
	return &Deployment{Name: name, Inventory: inventory, runner: runner, options: options}, nil
}

// Load lists the inventory of the named deployment and returns the Deployment.
func Load(ctx context.Context, name string, runner CommandRunner, options Options) (*Deployment, error) {
	inventory, err := LoadInventory(ctx, runner, options.BinDir, name)
	if err != nil {
		return nil, err
	}
	return New(name, inventory, runner, options)
}

func (d *Deployment) ssh(host, command string) process.Command {
	return process.Command{
		Path: filepath.Join(d.options.BinDir, "ssh"),
		Args: []string{d.Name, host, command},
	}
}

// Execute runs a shell command on host. If capture is set, its stdout is returned;
// otherwise it's passed through.
func (d *Deployment) Execute(ctx context.Context, host, command string, capture bool) ([]byte, error) {
	log.WithField("host", host).Infof("$ %s", command)
	c := d.ssh(host, command)
	if capture {
		out, err := d.runner.Output(ctx, c)
		if err != nil {
			return nil, errors.WithMessagef(err, "command failed on %s", host)
		}
		return out, nil
	}
	if err := d.runner.Run(ctx, c); err != nil {
		return nil, errors.WithMessagef(err, "command failed on %s", host)
	}
	return nil, nil
}

// ExecuteAll runs command on every host concurrently. The first failure cancels the others.
func (d *Deployment) ExecuteAll(ctx context.Context, hosts []string, command string) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, host := range hosts {
		host := host
		g.Go(func() error {
			_, err := d.Execute(ctx, host, command, false)
			return err
		})
	}
	return g.Wait()
}

// Transfer copies src to dest recursively with rsync over the deployment's ssh wrapper.
// Remote paths are written host:path. The parent of dest is created first.
// Failed transfers are retried; cancellation is not.
func (d *Deployment) Transfer(ctx context.Context, src, dest string, options ...string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return errors.WithStack(err)
	}
	args := append(append([]string{}, options...), "-r", "-e", filepath.Join(d.options.BinDir, "ssh")+" "+d.Name, src, dest)
	c := process.Command{Path: d.options.Rsync, Args: args}
	logger := log.WithFields(log.Fields{"src": src, "dest": dest})

	err := retry.Do(
		func() error {
			return d.runner.Run(ctx, c)
		},
		retry.Context(ctx),
		retry.Attempts(d.options.TransferAttempts),
		retry.Delay(d.options.TransferDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		}),
		retry.OnRetry(func(n uint, err error) {
			logger.WithError(err).Warnf("transfer attempt %d failed", n+1)
		}),
	)
	if err != nil {
		return errors.WithMessagef(err, "failed to transfer %s to %s", src, dest)
	}
	return nil
}

// Collect copies src from every host into destDir/<host>/, concurrently.
func (d *Deployment) Collect(ctx context.Context, hosts []string, src, destDir string) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, host := range hosts {
		host := host
		g.Go(func() error {
			return d.Transfer(ctx, host+":"+src, filepath.Join(destDir, host)+string(filepath.Separator))
		})
	}
	return g.Wait()
}

// ServerNames returns the names of the server hosts.
func (d *Deployment) ServerNames() []string {
	return Names(d.Inventory.Servers)
}

// ClientNames returns the names of the client hosts.
func (d *Deployment) ClientNames() []string {
	return Names(d.Inventory.Clients)
}

// MonitoringHost returns the host running Prometheus.
func (d *Deployment) MonitoringHost() (string, error) {
	if len(d.Inventory.Monitoring) == 0 {
		return "", errors.WithStack(&bencherrors.ErrNotFound{
			Type:    "inventory group",
			Value:   MonitoringGroup,
			Message: "the deployment has no monitoring host",
		})
	}
	return d.Inventory.Monitoring[0].Name, nil
}
