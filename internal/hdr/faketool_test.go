//go:build !windows

package hdr

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stressbench/stressbench/internal/common/process"
)

// fakeToolScript stands in for both histogram tools. Interval rows carry the number of
// operations in their last column instead of a compressed histogram, so union, trim and
// summarize can be computed with sort and awk.
const fakeToolScript = `
export LC_ALL=C
op=$1
shift
case "$op" in
union)
	inputs=""
	out=""
	start=""
	end=""
	while [ $# -gt 0 ]; do
		case "$1" in
		-ifp) inputs="$inputs $2"; shift 2 ;;
		-of) out=$2; shift 2 ;;
		-start) start=$2; shift 2 ;;
		-end) end=$2; shift 2 ;;
		*) echo "unknown argument $1" >&2; exit 2 ;;
		esac
	done
	if [ -n "$FAKE_TOOL_FAIL_UNION" ]; then
		echo "union failure" >&2
		exit 1
	fi
	tmp="$out.tmp.$$"
	{
		for f in $inputs; do
			grep -E '^(#|"StartTimestamp")' "$f" || true
			break
		done
		awk -F, -v start="$start" -v end="$end" '
			/^#/ || /^"/ || NF == 0 { next }
			{
				t = $2 + 0
				if (start != "" && t < start + 0) next
				if (end != "" && t > end + 0) next
				print
			}' $inputs | sort -u
	} > "$tmp"
	mv "$tmp" "$out"
	;;
summarize)
	[ "$1" = "-ifp" ] || { echo "expected -ifp" >&2; exit 2; }
	in=$2
	if [ -n "$FAKE_TOOL_SLEEP" ]; then
		sleep "$FAKE_TOOL_SLEEP" &
		echo $! >> "$FAKE_TOOL_PIDS"
		wait $!
	fi
	awk -F, -v omit="$FAKE_TOOL_OMIT" '
		/^#/ || /^"/ || NF == 0 { next }
		{
			tag = substr($1, 5)
			count[tag] += $5
			if (!(tag in first) || $2 + 0 < first[tag]) first[tag] = $2 + 0
			if (!(tag in last) || $2 + $3 > last[tag]) last[tag] = $2 + $3
		}
		END {
			for (tag in count) {
				period = (last[tag] - first[tag]) * 1000
				printf "%s.TotalCount=%d\n", tag, count[tag]
				printf "%s.Period(ms)=%d\n", tag, period
				printf "%s.Throughput(ops/sec)=%.3f\n", tag, (period > 0 ? count[tag] * 1000 / period : 0)
				if (omit != "Mean") printf "%s.Mean=1234567.0\n", tag
				printf "%s.50.000ptile=1000000.0\n", tag
				printf "%s.90.000ptile=2000000.0\n", tag
				printf "%s.99.000ptile=3000000.0\n", tag
				printf "%s.99.900ptile=4000000.0\n", tag
				printf "%s.99.990ptile=5000000.0\n", tag
				printf "%s.99.999ptile=6000000.0\n", tag
			}
		}' "$in"
	;;
decompose)
	while [ $# -gt 0 ]; do
		case "$1" in
		-i) in=$2; shift 2 ;;
		-o) out=$2; shift 2 ;;
		-tag) tag=$2; shift 2 ;;
		*) echo "unknown argument $1" >&2; exit 2 ;;
		esac
	done
	if [ -n "$FAKE_TOOL_FAIL_DECOMPOSE" ]; then
		echo "decompose failure" >&2
		exit 4
	fi
	grep "^Tag=$tag," "$in" > "$out" || true
	;;
*)
	echo "unknown operation $op" >&2
	exit 2
	;;
esac
`

const fakeLogHeader = `#[Logged with Cassandra-stress]
#[Histogram log format version 1.2]
#[StartTime: 1441812279.474 (seconds since epoch), Wed Sep 09 08:24:39 PDT 2015]
#[BaseTime: 0.000 (seconds since epoch)]
"StartTimestamp","Interval_Length","Interval_Max","Interval_Compressed_Histogram"
`

type interval struct {
	tag   string
	start int
	count int
}

// fakeToolConfig returns a Config running fakeToolScript with the given extra environment.
func fakeToolConfig(t *testing.T, env ...string) Config {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	for _, tool := range []string{"awk", "sort", "grep"} {
		if _, err := exec.LookPath(tool); err != nil {
			t.Skipf("%s not available", tool)
		}
	}
	script := filepath.Join(t.TempDir(), "fake-tool.sh")
	require.NoError(t, os.WriteFile(script, []byte(fakeToolScript), 0o755))

	config := DefaultConfig("")
	config.Processor = process.Command{Path: sh, Args: []string{script}, Env: env}
	config.LogProcessor = process.Command{Path: sh, Args: []string{script, "decompose"}, Env: env}
	config.Concurrency = 4
	return config
}

func quietRunner() *process.Exec {
	e := process.New()
	e.Stderr = nil
	return e
}

// writeShard writes a raw log for metric into dir/host.
func writeShard(t *testing.T, dir, host, metric string, intervals ...interval) string {
	var b strings.Builder
	b.WriteString(fakeLogHeader)
	for _, i := range intervals {
		fmt.Fprintf(&b, "Tag=%s,%d.000,1.000,2.500,%d\n", i.tag, i.start, i.count)
	}
	path := filepath.Join(dir, host, metric+DefaultExtension)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

// spread returns n intervals of tag starting at start whose counts add up to total.
func spread(tag string, start, n, total int) []interval {
	rv := make([]interval, n)
	for i := range rv {
		rv[i] = interval{tag: tag, start: start + i, count: total / n}
	}
	rv[n-1].count += total % n
	return rv
}

func processAlive(pid int) bool {
	content, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "stat"))
	if err != nil {
		return false
	}
	s := string(content)
	i := strings.LastIndex(s, ")")
	if i < 0 || i+2 >= len(s) {
		return false
	}
	return s[i+2] != 'Z'
}
