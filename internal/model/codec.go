package model

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// #region codec
const (
	KindLinear = "linear"
	KindRemote = "remote"
)

type artifact struct {
	Kind   string          `json:"kind"`
	Params json.RawMessage `json:"params"`
}

type remoteParams struct {
	Addr  string `json:"addr"`
	Model string `json:"model"`
	NOut  int    `json:"n_out"`
}

// Codec turns predictors into artifact bytes and back. Dial opens remote
// predictors; nil means DialRemote.
type Codec struct {
	Dial func(addr, modelRef string, nOut int) (Predictor, error)
}

// Encode serialises p with its kind tag.
func (c Codec) Encode(p Predictor) ([]byte, error) {
	var kind string
	var params any
	switch m := p.(type) {
	case *Linear:
		kind, params = KindLinear, m
	case *Remote:
		kind, params = KindRemote, remoteParams{Addr: m.Addr, Model: m.Model, NOut: m.NOut}
	default:
		return nil, fmt.Errorf("unsupported predictor type %T", p)
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal %s params: %w", kind, err)
	}
	return json.MarshalIndent(artifact{Kind: kind, Params: raw}, "", "  ")
}

// Decode restores a predictor written by Encode.
func (c Codec) Decode(data []byte) (Predictor, error) {
	var a artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("unmarshal artifact: %w", err)
	}
	switch a.Kind {
	case KindLinear:
		var l Linear
		if err := json.Unmarshal(a.Params, &l); err != nil {
			return nil, fmt.Errorf("unmarshal linear: %w", err)
		}
		if err := l.validate(); err != nil {
			return nil, err
		}
		return &l, nil
	case KindRemote:
		var rp remoteParams
		if err := json.Unmarshal(a.Params, &rp); err != nil {
			return nil, fmt.Errorf("unmarshal remote: %w", err)
		}
		if c.Dial != nil {
			return c.Dial(rp.Addr, rp.Model, rp.NOut)
		}
		return DialRemote(rp.Addr, rp.Model, rp.NOut)
	}
	return nil, fmt.Errorf("unknown model kind %q", a.Kind)
}

// #endregion codec

// #region dir-loader
// DirLoader reads artifacts named <ref>.json from a training directory.
type DirLoader struct {
	Dir   string
	Codec Codec
}

// Load resolves ref (see TrainRef and CycleRef) to a predictor.
func (d DirLoader) Load(ctx context.Context, ref string) (Predictor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := filepath.Join(d.Dir, ref+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", ref, err)
	}
	p, err := d.Codec.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", ref, err)
	}
	return p, nil
}

// Store writes p as the artifact for ref, creating the directory if needed.
func (d DirLoader) Store(ref string, p Predictor) error {
	data, err := d.Codec.Encode(p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", d.Dir, err)
	}
	return os.WriteFile(filepath.Join(d.Dir, ref+".json"), data, 0o644)
}

// #endregion dir-loader
