/*
Package hosting creates inference endpoints on the managed hosting service.

Provision creates a hosting model, a serving config and an endpoint in that
order, then polls the endpoint until it leaves Creating or the configured
poll timeout expires. Every resource name derives from the deployment's
hosting model name, {modelName}-{shortID}, which is written to the record
before the first create call so Teardown can find it later.

SageMaker is the Service implementation backed by aws-sdk-go-v2.
*/
package hosting
