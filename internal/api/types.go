package api

// SampleRequest asks for one chain. Source is a whitespace-tokenised
// sentence without <bos>/<eos>.
type SampleRequest struct {
	Source     string `json:"source"`
	TrgLen     int    `json:"trg_len"`
	NumSamples int    `json:"num_samples"`
	Seed       uint64 `json:"seed,omitempty"`
	Trace      bool   `json:"trace,omitempty"`
}

type KernelCounts struct {
	Accepted int64 `json:"accepted"`
	Rejected int64 `json:"rejected"`
}

// Step is one traced chain step.
type Step struct {
	Step     int     `json:"step"`
	Kernel   string  `json:"kernel,omitempty"`
	LPX      float64 `json:"lp_x"`
	LPY      float64 `json:"lp_y"`
	LQX      float64 `json:"lq_x_given_y"`
	LQY      float64 `json:"lq_y_given_x"`
	Alpha    float64 `json:"alpha"`
	Accepted bool    `json:"accepted"`
	Target   string  `json:"target"`
	Score    float64 `json:"score"`
}

type SampleResponse struct {
	ID         string                  `json:"id"`
	Object     string                  `json:"object"`
	Created    int64                   `json:"created"`
	Source     string                  `json:"source"`
	Target     string                  `json:"target"`
	Score      float64                 `json:"score"`
	TrgLen     int                     `json:"trg_len"`
	NumSamples int                     `json:"num_samples"`
	Accepted   int64                   `json:"accepted"`
	Rejected   int64                   `json:"rejected"`
	Kernels    map[string]KernelCounts `json:"kernels"`
	Steps      []Step                  `json:"steps,omitempty"`
}

type ModelInfo struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Role    string `json:"role"`
	OwnedBy string `json:"owned_by"`
}

type ResponseError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Param   string `json:"param,omitempty"`
}
