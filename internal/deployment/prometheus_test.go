package deployment

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stressbench/stressbench/internal/common/bencherrors"
)

func compactionsResponse(n string) string {
	return `{"status":"success","data":{"resultType":"vector","result":[{"metric":{},"value":[1690000000.123,"` + n + `"]}]}}`
}

func TestQueryPrometheus(t *testing.T) {
	runner := &fakeRunner{responses: []fakeResponse{{contains: "curl", output: compactionsResponse("3")}}}
	d := newTestDeployment(t, runner)

	vector, err := d.QueryPrometheus(context.Background(), ongoingCompactionsQuery)
	require.NoError(t, err)
	require.Len(t, vector, 1)
	assert.Equal(t, 3.0, float64(vector[0].Value))

	commands := runner.remoteCommands("monitor-0")
	require.Len(t, commands, 1)
	assert.Equal(t,
		"curl --silent 'http://localhost:9090/api/v1/query?query=sum%28scylla_compaction_manager_compactions%7B%7D%29'",
		commands[0])
}

func TestQueryPrometheus_Errors(t *testing.T) {
	tests := map[string]string{
		"not json": "<html>",
		"error":    `{"status":"error","errorType":"bad_data","error":"parse error"}`,
		"matrix":   `{"status":"success","data":{"resultType":"matrix","result":[]}}`,
	}
	for name, response := range tests {
		t.Run(name, func(t *testing.T) {
			runner := &fakeRunner{responses: []fakeResponse{{contains: "curl", output: response}}}
			d := newTestDeployment(t, runner)
			_, err := d.QueryPrometheus(context.Background(), "up")
			assert.Error(t, err)
		})
	}
}

func TestWaitForCompactionEnd(t *testing.T) {
	runner := &fakeRunner{responses: []fakeResponse{
		{contains: "curl", output: compactionsResponse("4"), times: 1},
		{contains: "curl", output: compactionsResponse("1"), times: 1},
		{contains: "curl", output: compactionsResponse("0")},
	}}
	d := newTestDeployment(t, runner)

	require.NoError(t, d.WaitForCompactionEnd(context.Background()))
	assert.Len(t, runner.remoteCommands("monitor-0"), 3)
}

func TestWaitForCompactionEnd_NoSeries(t *testing.T) {
	runner := &fakeRunner{responses: []fakeResponse{{
		contains: "curl",
		output:   `{"status":"success","data":{"resultType":"vector","result":[]}}`,
	}}}
	d := newTestDeployment(t, runner)
	assert.True(t, bencherrors.IsNotFound(d.WaitForCompactionEnd(context.Background())))
}

func TestWaitForCompactionEnd_Cancelled(t *testing.T) {
	runner := &fakeRunner{responses: []fakeResponse{{contains: "curl", output: compactionsResponse("2")}}}
	d := newTestDeployment(t, runner)
	d.options.CompactionPollPeriod = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := d.WaitForCompactionEnd(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestQuiesce(t *testing.T) {
	runner := &fakeRunner{responses: []fakeResponse{{contains: "curl", output: compactionsResponse("0")}}}
	d := newTestDeployment(t, runner)

	require.NoError(t, d.Quiesce(context.Background()))
	assert.Equal(t, []string{"nodetool flush"}, runner.remoteCommands("server-0"))
	assert.Equal(t, []string{"nodetool flush"}, runner.remoteCommands("server-1"))
	commands := runner.remoteCommands("monitor-0")
	require.Len(t, commands, 1)
	assert.True(t, strings.HasPrefix(commands[0], "curl --silent"))
}
