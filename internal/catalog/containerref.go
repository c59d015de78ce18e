package catalog

import (
	"strings"

	"github.com/distribution/reference"
)

// resolveContainerURI canonicalizes a CONTAINER_INFO URI when it is a
// docker-style reference (spec.md §4.4 "resolves the container
// reference"): the reference is normalized, given the default "latest"
// tag when it has none, and written back in its familiar short form
// ("docker://nipreps/mriqc" becomes "docker://nipreps/mriqc:latest").
// Non-docker URIs (e.g. "shub://...", a bare DOI, or a
// plain local path) are returned unchanged: the catalog only has a
// canonicalization opinion about docker references, since that is the
// one reference syntax the retrieved pack ships a parser for.
func resolveContainerURI(uri string) (string, error) {
	const dockerPrefix = "docker://"
	if !strings.HasPrefix(uri, dockerPrefix) {
		return uri, nil
	}
	named, err := reference.ParseNormalizedNamed(strings.TrimPrefix(uri, dockerPrefix))
	if err != nil {
		return "", err
	}
	return dockerPrefix + reference.FamiliarString(reference.TagNameOnly(named)), nil
}
