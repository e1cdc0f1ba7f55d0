package cluster

// keyspace derives the redis key names for one named cluster. Server
// and workers must agree on the cluster name to share a queue.
type keyspace struct {
	name string
}

func newKeyspace(name string) keyspace {
	if name == "" {
		name = "staging"
	}
	return keyspace{name: name}
}

func (k keyspace) queue() string { return "rspy:cluster:" + k.name + ":queue" }

func (k keyspace) reply(taskID string) string { return "rspy:cluster:" + k.name + ":reply:" + taskID }

func (k keyspace) cancel(taskID string) string { return "rspy:cluster:" + k.name + ":cancel:" + taskID }

func (k keyspace) worker(id string) string { return "rspy:cluster:" + k.name + ":workers:" + id }

func (k keyspace) workerPattern() string { return "rspy:cluster:" + k.name + ":workers:*" }
