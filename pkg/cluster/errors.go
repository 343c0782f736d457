package cluster

import (
	"fmt"
	"time"
)

// Reason classifies the outcome of a create_job call: one of created,
// AlreadyExists, Invalid, or other-reason.
type Reason string

const (
	ReasonCreated       Reason = "created"
	ReasonAlreadyExists Reason = "AlreadyExists"
	ReasonInvalid       Reason = "Invalid"
	ReasonOther         Reason = "other-reason"
)

// ClusterError reports the outcome of a non-created create_job call, or any
// other adapter operation that failed against the Kubernetes API.
type ClusterError struct {
	Op       string
	Resource string
	Reason   Reason
	Message  string
	Time     time.Time
}

func (e *ClusterError) Error() string {
	return fmt.Sprintf("cluster error during %s of %s (%s): %s", e.Op, e.Resource, e.Reason, e.Message)
}

func (e *ClusterError) Type() string {
	return string(e.Reason)
}

func newClusterError(op, resource string, reason Reason, message string) *ClusterError {
	return &ClusterError{
		Op:       op,
		Resource: resource,
		Reason:   reason,
		Message:  message,
		Time:     time.Now(),
	}
}
