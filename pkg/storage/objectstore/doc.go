// Package objectstore copies retention archives to S3 compatible object
// storage after they are written locally.
package objectstore
