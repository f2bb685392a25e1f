// Copyright 2025 walteh LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package download

import (
	"mime"
	"strings"
)

// mimeExts maps response media types to target extensions.
var mimeExts = map[string]string{
	"image/jpeg":               ".jpg",
	"image/png":                ".png",
	"image/gif":                ".gif",
	"image/svg+xml":            ".svg",
	"image/webp":               ".webp",
	"image/bmp":                ".bmp",
	"image/tiff":               ".tiff",
	"image/x-icon":             ".ico",
	"image/vnd.microsoft.icon": ".ico",
	"image/avif":               ".avif",

	"application/pdf":               ".pdf",
	"application/msword":            ".doc",
	"application/vnd.ms-excel":      ".xls",
	"application/vnd.ms-powerpoint": ".ppt",
	"application/zip":               ".zip",
	"application/json":              ".json",

	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   ".docx",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         ".xlsx",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": ".pptx",

	"video/mp4":  ".mp4",
	"text/plain": ".txt",
	"text/csv":   ".csv",
}

// protectedExts are formats never converted during normalization: already
// optimal for the web, or not raster images at all.
var protectedExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".svg": true, ".ico": true, ".pdf": true, ".mp4": true,
	".doc": true, ".docx": true, ".xls": true, ".xlsx": true,
	".ppt": true, ".pptx": true,
}

// imageLike extensions classify content as an image when the response
// carried no usable Content-Type.
var imageLike = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".svg": true, ".webp": true, ".ico": true, ".bmp": true,
	".tif": true, ".tiff": true, ".avif": true,
}

// extForContentType infers a target extension from a Content-Type header.
func extForContentType(contentType string) string {
	if contentType == "" {
		return ""
	}
	media, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return mimeExts[strings.ToLower(media)]
}

// isImageContentType reports whether the header describes an image.
func isImageContentType(contentType string) bool {
	if contentType == "" {
		return false
	}
	media, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return strings.HasPrefix(media, "image/")
}

// imageLikeExt reports whether an extension alone marks image content.
func imageLikeExt(ext string) bool {
	return imageLike[strings.ToLower(ext)]
}
