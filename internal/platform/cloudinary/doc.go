// Package cloudinary re-hosts local media files on Cloudinary through its
// unsigned upload endpoint. Unsigned uploads need only a cloud name and an
// upload preset, so no secret leaves the server.
package cloudinary
