/*
Package api implements the HTTP surface of modelhost on echo.

# Routes

	POST   /api/v1/modelhost           multipart upload, starts a deployment
	GET    /api/v1/deployments         list records (?userId= filters)
	GET    /api/v1/deployments/:id     one record, 404 when unknown
	DELETE /api/v1/deployments/:id     delete record, tear resources down in the background
	GET    /ws                         status notifications (see pkg/notify)
	GET    /health  /ready  /metrics

# Upload

The multipart form carries:

	file     the model archive (required, 400 without it)
	name     model name; whitespace is stripped for hosting resource names
	id       existing record to deploy into; a new record is created when empty
	userId   owner to notify; falls back to the X-User-ID header

The archive is saved as {uploadDir}/{base}-{millis}/{base}-{millis}.tar.gz
and the directory becomes the job's build context. The handler answers as
soon as the job is dispatched:

	200 {"message": "Model uploaded, deployment started", "id": "..."}

Validation failures answer 500 with {"message": ...} and leave no build
context behind. Pipeline failures after dispatch never reach the response;
clients watch /ws or poll GET /api/v1/deployments/:id.
*/
package api
