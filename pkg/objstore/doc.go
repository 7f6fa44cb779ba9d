/*
Package objstore defines the SRK Object Storage API: a small, fixed set of operations for interacting with cloud object
storage such as AWS S3, Google Cloud Storage, and Azure Blob Storage, independent of which one sits behind a bucket.

Operations

The service exposes six unary calls: Read, Write, Delete, ListBlobs, Exists and PreSignUrl. Every request names a
logical bucket; the server decides which backend owns that bucket when it is configured, never per call.

Wire format

Messages are encoded in the protobuf binary format so that any protobuf-capable peer can speak the API, but this
package does not depend on generated code. Each message carries explicit AppendWire/UnmarshalWire methods written
against protowire, and Codec plugs them into gRPC under the "proto" content-subtype. Unknown fields are skipped so
that the schema can grow.

Errors

The standard gRPC status codes correspond closely to the needs of object storage, so errors are encoded as part of
the RPC mechanism rather than in the response messages. The server maps every backend failure onto InvalidArgument,
NotFound, PermissionDenied or Internal and never forwards backend-native error codes. Clients decode the status back
into an *Error whose Kind additionally distinguishes TransportFailure (the channel broke or timed out before a reply)
and EmptyResponse (the channel returned no reply where one was required).

Consistency guarantees

There is no ordering between concurrent calls. A write and a read issued concurrently may race; callers that need
read-after-write must wait for the write to return. A call whose deadline expires fails with TransportFailure and
its effect on the backend is unspecified, so writes should be idempotent where exactly-once matters.

Limitations

Multipart uploads, object versions, bucket lifecycle and access control are not part of the API. Buckets are
created by provisioning tooling outside this package.
*/
package objstore
