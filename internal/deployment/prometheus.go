package deployment

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/alessio/shellescape"
	"github.com/pkg/errors"
	"github.com/prometheus/common/model"
	log "github.com/sirupsen/logrus"

	"github.com/stressbench/stressbench/internal/common/bencherrors"
)

const ongoingCompactionsQuery = "sum(scylla_compaction_manager_compactions{})"

type queryResponse struct {
	Status    string `json:"status"`
	ErrorType string `json:"errorType"`
	Error     string `json:"error"`
	Data      struct {
		ResultType model.ValueType `json:"resultType"`
		Result     model.Vector    `json:"result"`
	} `json:"data"`
}

// QueryPrometheus evaluates an instant vector query on the monitoring host's Prometheus.
// Prometheus isn't assumed to be reachable from here, so the query is run with curl on the
// monitoring host itself.
func (d *Deployment) QueryPrometheus(ctx context.Context, query string) (model.Vector, error) {
	host, err := d.MonitoringHost()
	if err != nil {
		return nil, err
	}
	u := strings.TrimSuffix(d.options.PrometheusURL, "/") + "/api/v1/query?" + url.Values{"query": {query}}.Encode()
	out, err := d.Execute(ctx, host, "curl --silent "+shellescape.Quote(u), true)
	if err != nil {
		return nil, err
	}
	return parseQueryResponse(out, query)
}

func parseQueryResponse(out []byte, query string) (model.Vector, error) {
	response := queryResponse{}
	if err := json.Unmarshal(out, &response); err != nil {
		return nil, errors.Wrapf(err, "invalid response to query %s", query)
	}
	if response.Status != "success" {
		return nil, errors.Errorf("query %s failed: %s: %s", query, response.ErrorType, response.Error)
	}
	if response.Data.ResultType != model.ValVector {
		return nil, errors.Errorf("query %s returned %s, expected a vector", query, response.Data.ResultType)
	}
	return response.Data.Result, nil
}

// OngoingCompactions returns the number of compactions running across the cluster.
func (d *Deployment) OngoingCompactions(ctx context.Context) (int, error) {
	vector, err := d.QueryPrometheus(ctx, ongoingCompactionsQuery)
	if err != nil {
		return 0, err
	}
	if len(vector) == 0 {
		return 0, errors.WithStack(&bencherrors.ErrNotFound{
			Type:    "series",
			Value:   ongoingCompactionsQuery,
			Message: "Prometheus has no compaction metrics; is it scraping the servers?",
		})
	}
	return int(vector[0].Value), nil
}

// WaitForCompactionEnd polls Prometheus until no compaction is running.
func (d *Deployment) WaitForCompactionEnd(ctx context.Context) error {
	log.Infof("waiting for all compactions to end, checking every %s", d.options.CompactionPollPeriod)
	ticker := time.NewTicker(d.options.CompactionPollPeriod)
	defer ticker.Stop()
	for {
		ongoing, err := d.OngoingCompactions(ctx)
		if err != nil {
			return err
		}
		log.Infof("number of ongoing compactions: %d", ongoing)
		if ongoing == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return errors.WithStack(ctx.Err())
		case <-ticker.C:
		}
	}
}

// Quiesce flushes the memtables of every server and waits for the resulting compactions to finish.
func (d *Deployment) Quiesce(ctx context.Context) error {
	if err := d.ExecuteAll(ctx, d.ServerNames(), "nodetool flush"); err != nil {
		return errors.WithMessage(err, "failed to flush servers")
	}
	return d.WaitForCompactionEnd(ctx)
}
