// Package carml trains the connected-car component classifier and records
// the result in a workspace.
//
// A run provisions the GloVe embeddings and the labelled component
// descriptions, tokenizes and pads the texts, trains a small feed-forward
// network on top of the frozen pretrained embedding, evaluates it on the
// held-out records and registers the artifact as a new model version.
//
// # Quick Start
//
//	ws := workspace.New(blobstore.NewLocalStore("./.workspace"))
//	p := carml.New(ws,
//		carml.WithLogger(carml.NewTextLogger(os.Stderr, slog.LevelInfo)),
//		carml.WithSeed(42),
//	)
//	res, err := p.Run(ctx, carml.Args{ModelName: "compliance", BuildNumber: "17"})
//
// # Stages
//
// Stages run strictly in order and every stage blocks:
//
//	provision   register or reuse glove_6B_100d, download it, register a
//	            build tagged version of connected_car_components
//	preprocess  tokenize, pad, shuffle, split into train/validation/test
//	embed       load vectors for the vocabulary and build the weight matrix
//	train       fit the model and save it to <outputs>/model/model.h5
//	evaluate    score the test split and log loss and acc to the run
//	register    register the artifact with its tags and training dataset
//
// A failing stage is reported as a *StageError and marks the run failed.
//
// # Configuration
//
// Defaults are the production settings: a 10,000 token vocabulary, sequences
// of 100 tokens, 100 dimensional vectors, 90,000 training and 5,000
// validation records, 3 epochs with batch size 32 and RMSprop at 0.1.
// Use WithConfig to apply a file loaded by the config package.
package carml
