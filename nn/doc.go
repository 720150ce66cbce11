// Package nn is a small feed-forward network library covering what the
// component classifier needs: a frozen or trainable embedding lookup,
// flattening, fully connected layers, binary cross-entropy, binary accuracy
// and the RMSprop optimizer.
//
// Activations are gonum matrices with one row per sample. Layer output
// shapes exclude the batch dimension; an Embedding of input length L and
// dimension D produces rows of L*D values laid out row-major, which is why
// Flatten does not move any data.
//
// Training computes minibatch gradients data-parallel: a batch is cut into
// contiguous shards, each shard runs forward and backward on its own
// goroutine, and the shard gradients are summed in shard order before the
// optimizer step.
package nn
