package app

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"bitbucket.org/kleinnic74/pinphotos/consts"
	"bitbucket.org/kleinnic74/pinphotos/swarm"
)

const (
	instanceBucket = "_instance"
	idKey          = "id"
)

func DefaultInstanceProperties() []swarm.PropertyDefinition {
	return []swarm.PropertyDefinition{
		swarm.WithPropertyValue("gc", consts.GitCommit),
		swarm.WithPropertyValue("gr", consts.GitRepo),
	}
}

// loadInstance returns the identity of this server, the id is generated
// once and kept in the data store
func loadInstance(db *bolt.DB, name string, p ...swarm.PropertyDefinition) (*swarm.Instance, error) {
	if name == "" {
		hostnameFQ, err := os.Hostname()
		if err != nil {
			return nil, err
		}
		name = fmt.Sprintf("pinphotos on %s", strings.Split(hostnameFQ, ".")[0])
	}
	instance := &swarm.Instance{Properties: make(map[string]string)}
	err := db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(instanceBucket))
		if err != nil {
			return err
		}
		if v := b.Get([]byte(idKey)); v != nil {
			var stored swarm.Instance
			if err := json.Unmarshal(v, &stored); err == nil {
				instance.ID = stored.ID
			}
		}
		if instance.ID == "" {
			i, err := uuid.NewRandom()
			if err != nil {
				return err
			}
			instance.ID = swarm.InstanceID(i.String())
		}
		for _, pd := range p {
			key, value := pd()
			instance.Properties[key] = value
		}
		instance.Name = name
		v, err := json.Marshal(instance)
		if err != nil {
			return err
		}
		return b.Put([]byte(idKey), v)
	})
	if err != nil {
		return nil, err
	}
	return instance, nil
}
