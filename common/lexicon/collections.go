package lexicon

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/atmopics/share/common/repo"
)

// Collection NSIDs. These are part of the wire contract with repository hosts.
const (
	CollectionCode     = "pics.atmo.code"
	CollectionImage    = "pics.atmo.image"
	CollectionMarkdown = "pics.atmo.markdown"
	CollectionVideo    = "pics.atmo.video"
)

// Kind is a content kind served by the share site
type Kind string

const (
	KindCode     Kind = "code"
	KindImage    Kind = "image"
	KindMarkdown Kind = "markdown"
	KindVideo    Kind = "video"
)

// Route describes how one content kind is exposed publicly
type Route struct {
	Kind       Kind
	Collection string
	// Prefix is the first path segment of the share link, e.g. "i" in /i/{repo}/{rkey}
	Prefix string
}

// Template returns the route pattern in echo syntax
func (r Route) Template() string {
	return "/" + r.Prefix + "/:repo/:rkey"
}

// ShareRoutes maps collection NSIDs to public routes. Adding a content kind
// is an entry here plus its schema.
var ShareRoutes = map[string]Route{
	CollectionCode:     {Kind: KindCode, Collection: CollectionCode, Prefix: "c"},
	CollectionImage:    {Kind: KindImage, Collection: CollectionImage, Prefix: "i"},
	CollectionMarkdown: {Kind: KindMarkdown, Collection: CollectionMarkdown, Prefix: "m"},
	CollectionVideo:    {Kind: KindVideo, Collection: CollectionVideo, Prefix: "v"},
}

// RouteFor returns the route for a collection
func RouteFor(collection string) (Route, bool) {
	r, ok := ShareRoutes[collection]
	return r, ok
}

// ShareLink builds the public URL for a record
func ShareLink(baseURL, repoID, collection, rkey string) (string, error) {
	route, ok := RouteFor(collection)
	if !ok {
		return "", fmt.Errorf("no share route for collection %q", collection)
	}
	if repoID == "" || rkey == "" {
		return "", fmt.Errorf("share link needs repo and rkey")
	}
	return fmt.Sprintf("%s/%s/%s/%s",
		strings.TrimRight(baseURL, "/"), route.Prefix, url.PathEscape(repoID), url.PathEscape(rkey)), nil
}

// ShareLinkFromURI builds the public URL for an at:// record URI
func ShareLinkFromURI(baseURL, uri string) (string, error) {
	addr, err := repo.ParseURI(uri)
	if err != nil {
		return "", err
	}
	return ShareLink(baseURL, addr.DID, addr.Collection, addr.RKey)
}
