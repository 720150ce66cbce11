// Package workspace provides the run context and the versioned dataset and
// model registries used by the training job.
//
// A Workspace stores everything in a blobstore.BlobStore:
//
//	datasets/<name>/<version>/<file>
//	datasets/<name>/<version>/dataset.json
//	models/<name>/<version>/<artifact>
//	models/<name>/<version>/model.json
//	runs/<experiment>/<run-id>/run.json
//	runs/<experiment>/<run-id>/metrics.json
//
// Version numbers are allocated through a VersionLog. A version is reserved
// with a conditional commit before any of its blobs are written, so two
// writers never share a version directory. The default log keeps its commits
// in the blob store itself; package ddb provides a DynamoDB backed log for
// shared S3 workspaces.
package workspace
