// Package registry tags and pushes built images to the container registry
// and removes local images on teardown.
package registry
