// Package s3 provides an Amazon S3 implementation of blobstore.BlobStore.
//
// # Usage
//
//	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion("eu-west-1"))
//	if err != nil { ... }
//	store := s3.NewStore(awss3.NewFromConfig(cfg), "ml-workspace", "carml/")
//	ws := workspace.New(store, ddb.NewVersionLog(dynamodb.NewFromConfig(cfg), "carml-versions", "s3://ml-workspace/carml"))
//
// # Features
//
//   - Range reads for partial fetches
//   - Streaming multipart uploads for large dataset files and model artifacts
//   - Automatic pagination for listing
//   - Configurable prefix for multi-tenant isolation
package s3
