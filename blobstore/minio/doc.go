// Package minio provides a BlobStore implementation using the MinIO client.
//
// It works against MinIO and other S3-compatible services (Ceph, Garage,
// SeaweedFS) and is the workspace backend of choice for air-gapped training
// clusters.
//
// # Basic Usage
//
//	store, err := minio.Dial(ctx, minio.Config{
//	    Endpoint:  "localhost:9000",
//	    AccessKey: "minioadmin",
//	    SecretKey: "minioadmin",
//	    Bucket:    "carml",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	ws := workspace.New(store, workspace.NewBlobVersionLog(store))
package minio
