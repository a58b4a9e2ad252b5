package nbi

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"
	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/manet-simulator/core"
	"github.com/signalsfoundry/manet-simulator/internal/config"
)

// ErrInvalidRequest marks malformed requests.
var ErrInvalidRequest = errors.New("invalid request")

// startRequest is the decoded form of a StartRun request:
//
//	{"config": {...run config...}, "positions": [{"x": 0, "y": 0}, ...], "wait": true}
type startRequest struct {
	Config    config.RunConfig
	Positions []core.Vec2
	Wait      bool
}

func decodeStartRequest(req *structpb.Struct) (startRequest, error) {
	var out startRequest
	if req == nil {
		return out, fmt.Errorf("%w: empty request", ErrInvalidRequest)
	}
	fields := req.GetFields()

	cfgVal, ok := fields["config"]
	if !ok || cfgVal.GetStructValue() == nil {
		return out, fmt.Errorf("%w: config is required", ErrInvalidRequest)
	}
	// The run config schema is the YAML file schema, so the request config
	// goes through the same parser and validation as a config file.
	data, err := yaml.Marshal(cfgVal.GetStructValue().AsMap())
	if err != nil {
		return out, fmt.Errorf("%w: encoding config: %v", ErrInvalidRequest, err)
	}
	if out.Config, err = config.Parse(data); err != nil {
		return out, err
	}

	if v, ok := fields["positions"]; ok {
		list := v.GetListValue()
		if list == nil {
			return out, fmt.Errorf("%w: positions must be a list", ErrInvalidRequest)
		}
		for i, p := range list.GetValues() {
			pt := p.GetStructValue()
			if pt == nil {
				return out, fmt.Errorf("%w: position %d is not an object", ErrInvalidRequest, i)
			}
			out.Positions = append(out.Positions, core.Vec2{
				X: pt.GetFields()["x"].GetNumberValue(),
				Y: pt.GetFields()["y"].GetNumberValue(),
			})
		}
		if len(out.Positions) == 0 {
			return out, fmt.Errorf("%w: positions is empty", ErrInvalidRequest)
		}
	}
	out.Wait = fields["wait"].GetBoolValue()
	return out, nil
}

func runIDFromRequest(req *structpb.Struct) (string, error) {
	id := req.GetFields()["run_id"].GetStringValue()
	if id == "" {
		return "", fmt.Errorf("%w: run_id is required", ErrInvalidRequest)
	}
	return id, nil
}

// runToStruct renders a run as a Struct. The summary uses the field names
// of the exported result documents.
func runToStruct(info RunInfo) (*structpb.Struct, error) {
	m, err := runToMap(info)
	if err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

func runToMap(info RunInfo) (map[string]any, error) {
	m := map[string]any{
		"run_id":     info.ID,
		"status":     string(info.Status),
		"algorithm":  info.Algorithm,
		"nodes":      info.Nodes,
		"delay":      info.Delay,
		"started_at": info.StartedAt.UTC().Format(time.RFC3339Nano),
	}
	if info.Status == RunRunning {
		return m, nil
	}
	m["finished_at"] = info.FinishedAt.UTC().Format(time.RFC3339Nano)
	if info.Err != "" {
		m["error"] = info.Err
		return m, nil
	}
	raw, err := json.Marshal(info.Summary)
	if err != nil {
		return nil, fmt.Errorf("encoding summary: %w", err)
	}
	var summary map[string]any
	if err := json.Unmarshal(raw, &summary); err != nil {
		return nil, fmt.Errorf("decoding summary: %w", err)
	}
	m["summary"] = summary
	return m, nil
}

func runsToStruct(runs []RunInfo) (*structpb.Struct, error) {
	list := make([]any, 0, len(runs))
	for _, info := range runs {
		m, err := runToMap(info)
		if err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return structpb.NewStruct(map[string]any{"runs": list})
}
