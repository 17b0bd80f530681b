// Package admin bootstraps the topics this service reads and writes.
package admin

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// TopicSpec describes how new topics are created.
type TopicSpec struct {
	Partitions        int32
	ReplicationFactor int16
}

// EnsureTopics creates any missing topics. Topics that already exist are left
// untouched.
func EnsureTopics(ctx context.Context, cl *kgo.Client, spec TopicSpec, topics ...string) error {
	if len(topics) == 0 {
		return nil
	}
	if spec.Partitions <= 0 {
		spec.Partitions = 1
	}
	if spec.ReplicationFactor <= 0 {
		spec.ReplicationFactor = 1
	}

	adm := kadm.NewClient(cl)
	resps, err := adm.CreateTopics(ctx, spec.Partitions, spec.ReplicationFactor, nil, topics...)
	if err != nil {
		return fmt.Errorf("create topics: %w", err)
	}
	var errs []error
	for _, r := range resps.Sorted() {
		if r.Err == nil || errors.Is(r.Err, kerr.TopicAlreadyExists) {
			continue
		}
		errs = append(errs, fmt.Errorf("create topic %s: %w", r.Topic, r.Err))
	}
	return errors.Join(errs...)
}
