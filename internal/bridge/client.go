package bridge

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"fabflow/internal/planner"
	"fabflow/internal/schematic"
)

// #region methods

// RPC method names on the Python perception/action sidecar. The sidecar
// exposes a schemaless service: every call exchanges a single Struct payload,
// so the bridge carries no generated stubs.
const (
	methodAlign       = "/fabflow.Sidecar/Align"
	methodSegment     = "/fabflow.Sidecar/Segment"
	methodOptimize    = "/fabflow.Sidecar/Optimize"
	methodExtractMask = "/fabflow.Sidecar/ExtractMask"
)

// #endregion methods

// #region errors

// ErrOptimizationFailed is returned when the sidecar's optimizer does not
// converge on the target geometry.
var ErrOptimizationFailed = errors.New("recipe optimization failed")

// ErrLayerNotFound is returned when mask extraction finds no polygons on the
// requested layer. Callers downgrade this to a warning.
var ErrLayerNotFound = errors.New("no polygons on requested layer")

// #endregion errors

// #region client-struct

// invoker is the subset of grpc.ClientConn the bridge needs. Tests inject a
// fake; production uses the real connection.
type invoker interface {
	Invoke(ctx context.Context, method string, args, reply interface{}, opts ...grpc.CallOption) error
}

// Client wraps the gRPC connection to the Python perception/action sidecar.
type Client struct {
	conn    *grpc.ClientConn
	invoker invoker
}

// #endregion client-struct

// #region constructor

// NewClient connects to the sidecar gRPC server.
func NewClient(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{conn: conn, invoker: conn}, nil
}

// NewClientWithInvoker creates a Client with an injected transport.
// Used for testing without a real gRPC connection.
func NewClientWithInvoker(inv invoker) *Client {
	return &Client{invoker: inv}
}

// #endregion constructor

// #region close

// Close shuts down the gRPC connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// #endregion close

// #region align

// Align registers the target snapshot against the reference and returns the
// path of the aligned image written by the sidecar. Unreadable inputs or too
// few feature correspondences surface as RPC errors.
func (c *Client) Align(ctx context.Context, referencePath, targetPath string) (string, error) {
	req, err := structpb.NewStruct(map[string]interface{}{
		"reference": referencePath,
		"target":    targetPath,
	})
	if err != nil {
		return "", fmt.Errorf("align request: %w", err)
	}
	resp := &structpb.Struct{}
	if err := c.invoker.Invoke(ctx, methodAlign, req, resp); err != nil {
		return "", fmt.Errorf("align rpc: %w", err)
	}
	aligned, ok := structString(resp, "aligned_path")
	if !ok || aligned == "" {
		return "", fmt.Errorf("align rpc: response missing aligned_path")
	}
	return aligned, nil
}

// #endregion align

// #region segment

// Segment runs semantic segmentation on an image and returns its material
// map. Cells travel base64-encoded, row-major.
func (c *Client) Segment(ctx context.Context, imagePath string) (*schematic.MaterialMap, error) {
	req, err := structpb.NewStruct(map[string]interface{}{
		"image": imagePath,
	})
	if err != nil {
		return nil, fmt.Errorf("segment request: %w", err)
	}
	resp := &structpb.Struct{}
	if err := c.invoker.Invoke(ctx, methodSegment, req, resp); err != nil {
		return nil, fmt.Errorf("segment rpc: %w", err)
	}

	width, okW := structNumber(resp, "width")
	height, okH := structNumber(resp, "height")
	cells, okC := structString(resp, "cells_b64")
	if !okW || !okH || !okC {
		return nil, fmt.Errorf("segment rpc: incomplete response")
	}
	m, err := schematic.DecodeCells(int(width), int(height), cells)
	if err != nil {
		return nil, fmt.Errorf("segment rpc: %w", err)
	}
	return m, nil
}

// #endregion segment

// #region optimize

// Optimize asks the sidecar to fit process parameters against the tool's
// surrogate model for the target geometry. Returns the optimized parameter
// set keyed by name (time_s, pressure_torr, achieved_thickness_nm).
func (c *Client) Optimize(ctx context.Context, modelRef string, geometry planner.Geometry) (map[string]float64, error) {
	req, err := structpb.NewStruct(map[string]interface{}{
		"model_ref": modelRef,
		"thickness": geometry.Thickness,
		"width":     geometry.Width,
	})
	if err != nil {
		return nil, fmt.Errorf("optimize request: %w", err)
	}
	resp := &structpb.Struct{}
	if err := c.invoker.Invoke(ctx, methodOptimize, req, resp); err != nil {
		return nil, fmt.Errorf("optimize rpc: %w", err)
	}

	if converged, ok := structBool(resp, "converged"); ok && !converged {
		return nil, fmt.Errorf("optimize %s: %w", modelRef, ErrOptimizationFailed)
	}

	params := make(map[string]float64)
	for key, value := range resp.GetFields() {
		if n, ok := value.GetKind().(*structpb.Value_NumberValue); ok {
			params[key] = n.NumberValue
		}
	}
	if len(params) == 0 {
		return nil, fmt.Errorf("optimize %s: empty parameter set: %w", modelRef, ErrOptimizationFailed)
	}
	return params, nil
}

// #endregion optimize

// #region extract-mask

// ExtractMask pulls one layer out of a layout file and writes it as a mask
// artifact at outputPath. A layer with no polygons returns ErrLayerNotFound.
func (c *Client) ExtractMask(ctx context.Context, layoutFile, outputPath string, layer, datatype int) error {
	req, err := structpb.NewStruct(map[string]interface{}{
		"layout":   layoutFile,
		"output":   outputPath,
		"layer":    layer,
		"datatype": datatype,
	})
	if err != nil {
		return fmt.Errorf("extract mask request: %w", err)
	}
	resp := &structpb.Struct{}
	if err := c.invoker.Invoke(ctx, methodExtractMask, req, resp); err != nil {
		return fmt.Errorf("extract mask rpc: %w", err)
	}
	if found, ok := structBool(resp, "found"); ok && !found {
		return fmt.Errorf("extract mask layer %d/%d from %s: %w", layer, datatype, layoutFile, ErrLayerNotFound)
	}
	return nil
}

// #endregion extract-mask

// #region struct-helpers

func structString(s *structpb.Struct, key string) (string, bool) {
	v, ok := s.GetFields()[key]
	if !ok {
		return "", false
	}
	sv, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", false
	}
	return sv.StringValue, true
}

func structNumber(s *structpb.Struct, key string) (float64, bool) {
	v, ok := s.GetFields()[key]
	if !ok {
		return 0, false
	}
	nv, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, false
	}
	return nv.NumberValue, true
}

func structBool(s *structpb.Struct, key string) (bool, bool) {
	v, ok := s.GetFields()[key]
	if !ok {
		return false, false
	}
	bv, ok := v.GetKind().(*structpb.Value_BoolValue)
	if !ok {
		return false, false
	}
	return bv.BoolValue, true
}

// #endregion struct-helpers
