package grid

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Status string

const (
	StatusOK       Status = "ok"
	StatusChanged  Status = "changed"
	StatusNotFound Status = "not_found"
	StatusInvalid  Status = "invalid"
)

// Response is the structured result of a row fetch or a mutation. A changed
// response names the affected element so the caller can refresh that row only.
type Response struct {
	Status    Status            `json:"status"`
	ElementID int64             `json:"elementId,omitempty"`
	Row       any               `json:"row,omitempty"`
	Errors    map[string]string `json:"errors,omitempty"`
	Input     any               `json:"input,omitempty"`
}

func dataChanged(id int64) *Response {
	return &Response{Status: StatusChanged, ElementID: id}
}

func rowFound(row any) *Response {
	return &Response{Status: StatusOK, Row: row}
}

func notFound() *Response {
	return &Response{Status: StatusNotFound}
}

func invalid(input any, errs map[string]string) *Response {
	return &Response{Status: StatusInvalid, Input: input, Errors: errs}
}

var outcomes = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "grid",
	Subsystem: "rows",
	Name:      "outcomes_total",
	Help:      "Row fetch and mutation outcomes broken down by action and status.",
}, []string{"action", "status"})

func record(action string, resp *Response) *Response {
	outcomes.With(prometheus.Labels{"action": action, "status": string(resp.Status)}).Inc()
	return resp
}
