package packager

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/openarchive/preserv-backend/internal/bitstore"
	"github.com/openarchive/preserv-backend/internal/common"
	"github.com/openarchive/preserv-backend/internal/domain"
	"github.com/openarchive/preserv-backend/internal/metrics"
	pkglogger "github.com/openarchive/preserv-backend/pkg/logger"
)

// OREFormat is the format identifier stored on resource-map bitstreams.
const OREFormat = "http://www.openarchives.org/ore/terms/"

type rdfDocument struct {
	XMLName      xml.Name         `xml:"rdf:RDF"`
	XMLNSRdf     string           `xml:"xmlns:rdf,attr"`
	XMLNSOre     string           `xml:"xmlns:ore,attr"`
	XMLNSDc      string           `xml:"xmlns:dc,attr"`
	XMLNSDcterms string           `xml:"xmlns:dcterms,attr"`
	XMLNSCito    string           `xml:"xmlns:cito,attr"`
	Descriptions []rdfDescription `xml:"rdf:Description"`
}

type rdfDescription struct {
	About          string        `xml:"rdf:about,attr"`
	Types          []rdfResource `xml:"rdf:type"`
	Describes      *rdfResource  `xml:"ore:describes"`
	Aggregates     []rdfResource `xml:"ore:aggregates"`
	Documents      []rdfResource `xml:"cito:documents"`
	IsDocumentedBy []rdfResource `xml:"cito:isDocumentedBy"`
	Identifier     string        `xml:"dcterms:identifier,omitempty"`
	Title          string        `xml:"dcterms:title,omitempty"`
	Creator        string        `xml:"dcterms:creator,omitempty"`
	Created        string        `xml:"dcterms:created,omitempty"`
	Modified       string        `xml:"dcterms:modified,omitempty"`
	Format         string        `xml:"dc:format,omitempty"`
}

type rdfResource struct {
	Resource string `xml:"rdf:resource,attr"`
}

// OREWriter materializes an OAI-ORE resource map relating an item's science
// metadata (its archival manifest) to its science data (the content
// bitstreams). Unlike the AIP manifest, the resource map carries wall-clock
// creation and modification timestamps, so regenerating it produces a new
// checksum each time.
type OREWriter struct {
	store *bitstore.Store
	// resolveBase is the URL prefix under which member identifiers resolve,
	// e.g. "https://repo.example.org/resolve/".
	resolveBase string
	site        SiteInfo
	now         func() time.Time
	log         zerolog.Logger
}

func NewOREWriter(store *bitstore.Store, resolveBase string, site SiteInfo) *OREWriter {
	return &OREWriter{
		store:       store,
		resolveBase: resolveBase,
		site:        site,
		now:         time.Now,
		log:         pkglogger.Component("packager.ore"),
	}
}

// Write generates the resource map over the item's content and the given
// archival manifest, storing it through the digest sink.
func (w *OREWriter) Write(ctx context.Context, item *domain.Item, aip *domain.Bitstream) (*domain.Bitstream, error) {
	timer := prometheus.NewTimer(metrics.ManifestGenerationDuration.WithLabelValues("ore"))
	defer timer.ObserveDuration()

	if aip == nil {
		return nil, fmt.Errorf("%w: resource map requires an archival manifest", common.ErrManifestValidation)
	}

	sink, err := w.store.Open(ctx, OREFormat)
	if err != nil {
		return nil, err
	}

	doc := w.buildDocument(item, aip, sink.Bitstream())
	if _, err := sink.Write([]byte(xml.Header)); err != nil {
		w.store.Abort(ctx, sink)
		return nil, fmt.Errorf("%w: writing resource map: %v", common.ErrStorageFailure, err)
	}
	enc := xml.NewEncoder(sink)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		w.store.Abort(ctx, sink)
		return nil, fmt.Errorf("%w: encoding resource map: %v", common.ErrStorageFailure, err)
	}

	sink.Bitstream().Name = manifestName(item, "ore.xml")
	sink.Bitstream().Source = w.site.Name
	if err := sink.Close(ctx); err != nil {
		w.store.Abort(ctx, sink)
		return nil, err
	}

	metrics.ManifestsGenerated.WithLabelValues("ore").Inc()
	w.log.Info().
		Uint64("item_id", item.ID).
		Uint64("bitstream_id", sink.Bitstream().ID).
		Uint64("aip_bitstream_id", aip.ID).
		Msg("ore resource map written")
	return sink.Bitstream(), nil
}

// MemberIdentifier is the persistent identifier recorded for a bitstream in
// resource maps, URL-encoded for use as a path segment.
func MemberIdentifier(bitstreamID uint64) string {
	return url.QueryEscape(fmt.Sprintf("dc:bitstream/%d", bitstreamID))
}

func (w *OREWriter) memberURL(bitstreamID uint64) string {
	return w.resolveBase + MemberIdentifier(bitstreamID)
}

func (w *OREWriter) buildDocument(item *domain.Item, aip *domain.Bitstream, self *domain.Bitstream) *rdfDocument {
	const (
		oreNS  = "http://www.openarchives.org/ore/terms/"
		citoNS = "http://purl.org/spar/cito/"
	)
	stamp := w.now().UTC().Format("2006-01-02T15:04:05Z")

	aggURL := w.memberURL(self.ID) + "#aggregation"
	remURL := w.memberURL(self.ID)
	aipURL := w.memberURL(aip.ID)

	agg := rdfDescription{
		About: aggURL,
		Types: []rdfResource{{Resource: oreNS + "Aggregation"}},
		Title: item.Title(),
	}
	rem := rdfDescription{
		About:      remURL,
		Types:      []rdfResource{{Resource: oreNS + "ResourceMap"}},
		Describes:  &rdfResource{Resource: aggURL},
		Identifier: MemberIdentifier(self.ID),
		Creator:    w.site.URL,
		Created:    stamp,
		Modified:   stamp,
		Format:     "application/rdf+xml",
	}

	scimeta := rdfDescription{
		About:      aipURL,
		Identifier: MemberIdentifier(aip.ID),
		Format:     aip.Format,
	}
	agg.Aggregates = append(agg.Aggregates, rdfResource{Resource: aipURL})

	var scidata []rdfDescription
	for _, id := range item.BitstreamIDs() {
		u := w.memberURL(id)
		agg.Aggregates = append(agg.Aggregates, rdfResource{Resource: u})
		scimeta.Documents = append(scimeta.Documents, rdfResource{Resource: u})
		scidata = append(scidata, rdfDescription{
			About:          u,
			Identifier:     MemberIdentifier(id),
			IsDocumentedBy: []rdfResource{{Resource: aipURL}},
		})
	}

	doc := &rdfDocument{
		XMLNSRdf:     "http://www.w3.org/1999/02/22-rdf-syntax-ns#",
		XMLNSOre:     oreNS,
		XMLNSDc:      "http://purl.org/dc/elements/1.1/",
		XMLNSDcterms: "http://purl.org/dc/terms/",
		XMLNSCito:    citoNS,
	}
	doc.Descriptions = append(doc.Descriptions, rem, agg, scimeta)
	doc.Descriptions = append(doc.Descriptions, scidata...)
	return doc
}
