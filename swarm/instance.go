package swarm

import (
	"fmt"
	"sort"
	"strings"
)

type InstanceID string

func (id InstanceID) String() string {
	return string(id)
}

// Instance describes the local server as it is announced on the network
type Instance struct {
	ID         InstanceID        `json:"id"`
	Name       string            `json:"name"`
	Properties map[string]string `json:"properties,omitempty"`
}

type PropertyDefinition func() (string, string)

func WithPropertyValue(name, value string) PropertyDefinition {
	return func() (string, string) { return name, value }
}

// TXT returns the instance properties as DNS-SD TXT records, the instance
// id is always included
func (i *Instance) TXT() []string {
	txt := []string{fmt.Sprintf("id=%s", i.ID)}
	keys := make([]string, 0, len(i.Properties))
	for k := range i.Properties {
		if k != "id" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		txt = append(txt, fmt.Sprintf("%s=%s", k, i.Properties[k]))
	}
	return txt
}

func propertiesFromTXT(txt []string) (p map[string]string) {
	p = make(map[string]string)
	for _, kv := range txt {
		parts := strings.SplitN(kv, "=", 2)
		if parts[0] == "" {
			continue
		}
		if len(parts) == 2 {
			p[parts[0]] = parts[1]
		} else {
			p[parts[0]] = ""
		}
	}
	return
}

func findID(txt []string) InstanceID {
	return InstanceID(propertiesFromTXT(txt)["id"])
}
