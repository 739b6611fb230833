package deployment

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/stressbench/stressbench/internal/common/bencherrors"
	"github.com/stressbench/stressbench/internal/common/process"
)

// Inventory groups.
const (
	ServerGroup     = "server"
	ClientGroup     = "client"
	MonitoringGroup = "monitoring"
)

const privateIPVar = "private_ip"

// Host is one machine of a deployment, with its inventory variables.
type Host struct {
	Name string
	Vars map[string]interface{}
}

// PrivateIP returns the address the other hosts of the deployment reach this one on.
func (h Host) PrivateIP() string {
	if ip, ok := h.Vars[privateIPVar]; ok && ip != nil {
		return fmt.Sprintf("%v", ip)
	}
	return ""
}

// Inventory holds the hosts of a deployment in inventory order.
type Inventory struct {
	Servers    []Host
	Clients    []Host
	Monitoring []Host
}

type inventoryDocument struct {
	All struct {
		Children map[string]struct {
			Hosts yaml.MapSlice `yaml:"hosts"`
		} `yaml:"children"`
	} `yaml:"all"`
}

// LoadInventory lists the inventory of deployment with the ansible-inventory wrapper in binDir.
func LoadInventory(ctx context.Context, runner CommandRunner, binDir, deployment string) (*Inventory, error) {
	c := process.Command{
		Path: filepath.Join(binDir, "ansible-inventory"),
		Args: []string{deployment, "--list", "--yaml"},
	}
	out, err := runner.Output(ctx, c)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to list inventory of deployment %s", deployment)
	}
	return ParseInventory(out)
}

// ParseInventory parses the YAML output of ansible-inventory --list.
// Server and client groups must have at least one host each, every one with a private_ip;
// the first monitoring host, if any, is used for metric queries.
func ParseInventory(data []byte) (*Inventory, error) {
	doc := inventoryDocument{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.WithStack(err)
	}
	groups := make(map[string][]Host, len(doc.All.Children))
	for group, children := range doc.All.Children {
		for _, item := range children.Hosts {
			host, err := parseHost(item)
			if err != nil {
				return nil, errors.WithMessagef(err, "group %s", group)
			}
			groups[group] = append(groups[group], host)
		}
	}

	inventory := &Inventory{
		Servers:    groups[ServerGroup],
		Clients:    groups[ClientGroup],
		Monitoring: groups[MonitoringGroup],
	}
	for _, group := range []string{ServerGroup, ClientGroup} {
		hosts := groups[group]
		if len(hosts) == 0 {
			return nil, errors.WithStack(&bencherrors.ErrNotFound{
				Type:    "inventory group",
				Value:   group,
				Message: "the deployment has no hosts in it",
			})
		}
		for _, host := range hosts {
			if host.PrivateIP() == "" {
				return nil, errors.WithStack(&bencherrors.ErrInvalidArgument{
					Name:    "hosts",
					Value:   host.Name,
					Message: group + " host has no " + privateIPVar,
				})
			}
		}
	}
	return inventory, nil
}

func parseHost(item yaml.MapItem) (Host, error) {
	name, ok := item.Key.(string)
	if !ok || name == "" {
		return Host{}, errors.Errorf("invalid host name %v", item.Key)
	}
	host := Host{Name: name, Vars: map[string]interface{}{}}
	switch vars := item.Value.(type) {
	case nil:
	case yaml.MapSlice:
		for _, v := range vars {
			key, ok := v.Key.(string)
			if !ok {
				return Host{}, errors.Errorf("host %s: invalid variable name %v", name, v.Key)
			}
			host.Vars[key] = v.Value
		}
	default:
		return Host{}, errors.Errorf("host %s: expected a mapping of variables, got %T", name, item.Value)
	}
	return host, nil
}

// Names returns the names of hosts.
func Names(hosts []Host) []string {
	rv := make([]string, len(hosts))
	for i, host := range hosts {
		rv[i] = host.Name
	}
	return rv
}

// PrivateIPs returns the private addresses of hosts.
func PrivateIPs(hosts []Host) []string {
	rv := make([]string, len(hosts))
	for i, host := range hosts {
		rv[i] = host.PrivateIP()
	}
	return rv
}
