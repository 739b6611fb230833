package deployment

import (
	"context"
	"fmt"
	"strings"

	"github.com/alessio/shellescape"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/stressbench/stressbench/internal/common/bencherrors"
)

const (
	DefaultStress = "cassandra-stress"
	// Keyspace written by cassandra-stress and dropped before populating.
	stressKeyspace = "keyspace1"
	// Name of the histogram log cassandra-stress writes in the working directory of each client.
	StressLogFile = "log.hdr"

	stressMode   = "-mode native cql3 protocolVersion=4 maxPending=4096"
	populateMode = "-mode native cql3 protocolVersion=4"
	populateRate = "-rate threads=200"
)

// StressOptions describes one cassandra-stress run on the clients of a deployment.
type StressOptions struct {
	// Command and its options, e.g. `mixed ratio\(write=1,read=0\) duration=300s cl=QUORUM`.
	Operation string
	// Population distribution, e.g. "dist=UNIFORM(1..1000)".
	Population string
	// Rate options, e.g. "threads=500" or "threads=200 fixed=1000/s".
	Rate string
	// Executable on the clients. Defaults to DefaultStress.
	Executable string
	// Servers to load and clients to load them from. Default to every server and every client.
	Servers []string
	Clients []string
}

// PopulateOptions describes the initial load of the dataset.
type PopulateOptions struct {
	Rows              int64
	ReplicationFactor int
	// Executable on the clients. Defaults to DefaultStress.
	Executable string
}

// Range is an inclusive range of row keys.
type Range struct {
	Start int64
	End   int64
}

func (r Range) Len() int64 {
	return r.End - r.Start + 1
}

// CassandraStress runs cassandra-stress on the selected clients concurrently, each one writing
// its latencies to StressLogFile in its working directory.
func (d *Deployment) CassandraStress(ctx context.Context, o StressOptions) error {
	nodes, err := d.serverIPs(o.Servers)
	if err != nil {
		return err
	}
	clients := o.Clients
	if len(clients) == 0 {
		clients = d.ClientNames()
	}
	command := strings.Join([]string{
		executable(o.Executable),
		o.Operation,
		"-pop " + shellescape.Quote(o.Population),
		"-node " + strings.Join(nodes, ","),
		"-rate " + o.Rate,
		"-log hdrfile=" + StressLogFile,
		stressMode,
	}, " ")
	return d.ExecuteAll(ctx, clients, command)
}

// Populate drops the stress keyspace and writes rows 1..o.Rows, split evenly across the clients.
func (d *Deployment) Populate(ctx context.Context, o PopulateOptions) error {
	if o.Rows <= 0 {
		return errors.WithStack(&bencherrors.ErrInvalidArgument{Name: "Rows", Value: o.Rows, Message: "must be positive"})
	}
	if o.ReplicationFactor <= 0 {
		return errors.WithStack(&bencherrors.ErrInvalidArgument{
			Name:    "ReplicationFactor",
			Value:   o.ReplicationFactor,
			Message: "must be positive",
		})
	}
	first := d.Inventory.Servers[0]
	drop := fmt.Sprintf(`cqlsh -e "DROP KEYSPACE IF EXISTS %s;" %s`, stressKeyspace, first.PrivateIP())
	if _, err := d.Execute(ctx, first.Name, drop, false); err != nil {
		return err
	}

	schema := "-schema " + shellescape.Quote(
		fmt.Sprintf("replication(strategy=SimpleStrategy,replication_factor=%d)", o.ReplicationFactor))
	node := "-node " + strings.Join(PrivateIPs(d.Inventory.Servers), ",")
	ranges := PopulationRanges(o.Rows, len(d.Inventory.Clients))
	log.Infof("populating %d rows from %d clients", o.Rows, len(ranges))

	g, ctx := errgroup.WithContext(ctx)
	for i, r := range ranges {
		host, r := d.Inventory.Clients[i].Name, r
		command := fmt.Sprintf(
			"%s write cl=ONE n=%d -pop seq=%d..%d %s %s %s %s",
			executable(o.Executable), r.Len(), r.Start, r.End, schema, node, populateRate, populateMode,
		)
		g.Go(func() error {
			_, err := d.Execute(ctx, host, command, false)
			return err
		})
	}
	return g.Wait()
}

// PopulationRanges splits 1..rows into loaders consecutive ranges of rows/loaders keys; the last
// range also takes the remainder. Ranges that would be empty are left out, so fewer than
// loaders ranges are returned when rows < loaders.
func PopulationRanges(rows int64, loaders int) []Range {
	if rows <= 0 || loaders <= 0 {
		return nil
	}
	perLoader := rows / int64(loaders)
	var rv []Range
	for i := int64(0); i < int64(loaders); i++ {
		r := Range{Start: perLoader*i + 1, End: perLoader * (i + 1)}
		if i == int64(loaders)-1 {
			r.End = rows
		}
		if r.Len() > 0 {
			rv = append(rv, r)
		}
	}
	return rv
}

func (d *Deployment) serverIPs(names []string) ([]string, error) {
	if len(names) == 0 {
		return PrivateIPs(d.Inventory.Servers), nil
	}
	byName := make(map[string]Host, len(d.Inventory.Servers))
	for _, host := range d.Inventory.Servers {
		byName[host.Name] = host
	}
	rv := make([]string, 0, len(names))
	for _, name := range names {
		host, ok := byName[name]
		if !ok {
			return nil, errors.WithStack(&bencherrors.ErrNotFound{Type: "server", Value: name})
		}
		rv = append(rv, host.PrivateIP())
	}
	return rv, nil
}

func executable(name string) string {
	if name == "" {
		return DefaultStress
	}
	return name
}
