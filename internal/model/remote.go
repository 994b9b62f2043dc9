package model

import (
	"context"
	"fmt"

	"github.com/kiryteo/lumin/internal/tensor"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// PredictMethod is the full gRPC method name served by the inference service.
const PredictMethod = "/lumin.inference.v1.InferenceService/Predict"

// #region remote-struct
// Remote is a predictor served by an external inference process. Requests
// and responses are google.protobuf.Struct messages:
//
//	request:  {model, rows, cols, inputs: [row-major values]}
//	response: {n_out, outputs: [row-major values]}
type Remote struct {
	conn   grpc.ClientConnInterface
	closer func() error
	Addr   string
	Model  string
	NOut   int
}

// #endregion remote-struct

// #region constructor
// DialRemote connects to the inference server at addr.
func DialRemote(addr, modelRef string, nOut int) (*Remote, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Remote{conn: conn, closer: conn.Close, Addr: addr, Model: modelRef, NOut: nOut}, nil
}

// NewRemoteWithConn creates a Remote over an existing connection.
// Used for testing without a real gRPC server.
func NewRemoteWithConn(conn grpc.ClientConnInterface, modelRef string, nOut int) *Remote {
	return &Remote{conn: conn, Model: modelRef, NOut: nOut}
}

// Close shuts down the connection when this Remote owns it.
func (r *Remote) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer()
}

// #endregion constructor

// #region predict
func (r *Remote) OutputDim() int { return r.NOut }

// Predict sends the inputs to the inference service.
func (r *Remote) Predict(ctx context.Context, inputs tensor.Matrix) (tensor.Matrix, error) {
	values := make([]any, len(inputs.Data))
	for i, v := range inputs.Data {
		values[i] = v
	}
	req, err := structpb.NewStruct(map[string]any{
		"model":  r.Model,
		"rows":   inputs.Rows,
		"cols":   inputs.Cols,
		"inputs": values,
	})
	if err != nil {
		return tensor.Matrix{}, fmt.Errorf("build predict request: %w", err)
	}

	resp := &structpb.Struct{}
	if err := r.conn.Invoke(ctx, PredictMethod, req, resp); err != nil {
		return tensor.Matrix{}, fmt.Errorf("predict rpc: %w", err)
	}

	nOut := int(resp.GetFields()["n_out"].GetNumberValue())
	if nOut != r.NOut {
		return tensor.Matrix{}, fmt.Errorf("model %s returned %d outputs, want %d", r.Model, nOut, r.NOut)
	}
	outs := resp.GetFields()["outputs"].GetListValue().GetValues()
	if len(outs) != inputs.Rows*nOut {
		return tensor.Matrix{}, fmt.Errorf("model %s returned %d values for %d events", r.Model, len(outs), inputs.Rows)
	}
	out := tensor.New(inputs.Rows, nOut)
	for i, v := range outs {
		out.Data[i] = v.GetNumberValue()
	}
	return out, nil
}

// #endregion predict
