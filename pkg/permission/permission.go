package permission

import (
	"sort"

	gferrors "github.com/vnykmshr/gateflow/pkg/common/errors"
)

// TopicGrants lists the topics one agent may read and write.
type TopicGrants struct {
	Read  []string
	Write []string
}

// Guard answers permission checks for agent/topic pairs. It is immutable
// after construction and safe for concurrent use without locking.
type Guard struct {
	agents map[string]*agentGrants
}

type agentGrants struct {
	read     map[string]struct{}
	write    map[string]struct{}
	readable []string
	writable []string
}

// New builds a Guard from per-agent topic grants. Grants are copied,
// deduplicated and sorted; later mutation of the input does not affect
// the guard. An agent absent from grants is denied everything.
func New(grants map[string]TopicGrants) (*Guard, error) {
	agents := make(map[string]*agentGrants, len(grants))
	for name, g := range grants {
		if name == "" {
			return nil, gferrors.NewValidationError("permission", "agent", name, "cannot be empty").
				WithHint("grant topics to a named agent")
		}
		read, readable := indexTopics(g.Read)
		write, writable := indexTopics(g.Write)
		agents[name] = &agentGrants{
			read:     read,
			write:    write,
			readable: readable,
			writable: writable,
		}
	}
	return &Guard{agents: agents}, nil
}

// indexTopics builds a membership set plus a sorted, deduplicated list.
func indexTopics(topics []string) (map[string]struct{}, []string) {
	set := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		if t == "" {
			continue
		}
		set[t] = struct{}{}
	}
	list := make([]string, 0, len(set))
	for t := range set {
		list = append(list, t)
	}
	sort.Strings(list)
	return set, list
}

// CanRead reports whether the agent may read the topic.
func (g *Guard) CanRead(agent, topic string) bool {
	a, ok := g.agents[agent]
	if !ok {
		return false
	}
	_, ok = a.read[topic]
	return ok
}

// CanWrite reports whether the agent may write the topic.
func (g *Guard) CanWrite(agent, topic string) bool {
	a, ok := g.agents[agent]
	if !ok {
		return false
	}
	_, ok = a.write[topic]
	return ok
}

// Topics returns sorted copies of the agent's readable and writable
// topics. Unknown agents get empty lists.
func (g *Guard) Topics(agent string) (readable, writable []string) {
	a, ok := g.agents[agent]
	if !ok {
		return []string{}, []string{}
	}
	readable = make([]string, len(a.readable))
	copy(readable, a.readable)
	writable = make([]string, len(a.writable))
	copy(writable, a.writable)
	return readable, writable
}

// Agents returns the sorted names of all agents with any grants.
func (g *Guard) Agents() []string {
	names := make([]string, 0, len(g.agents))
	for name := range g.agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
