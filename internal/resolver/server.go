package resolver

import (
	"fmt"

	"github.com/Guliveer/vitalis/data-collector/internal/config"
)

// BaselineIDs are attached to every server ahead of its configured resolvers.
var BaselineIDs = []string{NetworkID, TracerouteID}

// BuildServers creates the server list from configuration. Every server gets
// the baseline resolvers first; an explicit entry for a baseline id replaces
// the baseline's (empty) configuration instead of adding a second instance.
func BuildServers(reg *Registry, servers []config.ServerConfig) ([]Server, error) {
	out := make([]Server, 0, len(servers))
	for _, sc := range servers {
		configs := make([]Decoder, 0, len(BaselineIDs)+len(sc.Resolvers))
		ids := make([]string, 0, cap(configs))
		position := make(map[string]int, cap(configs))

		for _, id := range BaselineIDs {
			position[id] = len(ids)
			ids = append(ids, id)
			configs = append(configs, nil)
		}
		for _, rc := range sc.Resolvers {
			if i, ok := position[rc.ID]; ok {
				configs[i] = rc
				continue
			}
			position[rc.ID] = len(ids)
			ids = append(ids, rc.ID)
			configs = append(configs, rc)
		}

		server := Server{Hostname: sc.Hostname, Resolvers: make([]Resolver, 0, len(ids))}
		for i, id := range ids {
			res, err := reg.Create(id, configs[i])
			if err != nil {
				return nil, fmt.Errorf("server %q: %w", sc.Hostname, err)
			}
			server.Resolvers = append(server.Resolvers, res)
		}
		out = append(out, server)
	}
	return out, nil
}
