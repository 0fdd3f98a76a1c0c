// Package dynamo provides core primitives shared by the Bloch-McConnell
// simulation engine.
//
// The package defines the types every other layer speaks:
//
//   - [State]: magnetization vector laid out as [Mx...][My...][Mz...][MzMT]
//   - [Observer]: hook invoked whenever a readout is stored
//   - [SimulationError]: per-step failure with event and sub-step context
//   - [ParallelFor]: chunked worker split used by the batched offset mode
//
// # Example
//
//	model, _ := pools.New(water, cest, mt, scanner)
//	runner := sim.New(model, propagator.NewEigen(), opts)
//	result, _ := runner.Run(ctx, sequence)
//
// # Thread Safety
//
// State values are plain slices and are NOT safe for concurrent mutation.
// The parallel runner gives every offset its own State and matrix copy.
package dynamo
