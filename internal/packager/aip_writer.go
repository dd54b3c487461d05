package packager

import (
	"context"
	"encoding/xml"
	"fmt"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/openarchive/preserv-backend/internal/bitstore"
	"github.com/openarchive/preserv-backend/internal/common"
	"github.com/openarchive/preserv-backend/internal/domain"
	"github.com/openarchive/preserv-backend/internal/metrics"
	pkglogger "github.com/openarchive/preserv-backend/pkg/logger"
)

const (
	// METSFormat is the format identifier stored on AIP manifest bitstreams.
	METSFormat = "http://www.loc.gov/METS/"

	// AIPProfile identifies the manifest layout this writer produces.
	AIPProfile = "http://www.openarchive.org/schema/aip/mets_aip_1_0.xsd"

	xlinkNS = "http://www.w3.org/1999/xlink"
)

// metsDocument is the manifest serialization model. Field order here is the
// document order on the wire; do not reorder without a profile bump.
type metsDocument struct {
	XMLName    xml.Name    `xml:"mets"`
	XMLNS      string      `xml:"xmlns,attr"`
	XMLNSXlink string      `xml:"xmlns:xlink,attr"`
	ID         string      `xml:"ID,attr"`
	OBJID      string      `xml:"OBJID,attr"`
	Label      string      `xml:"LABEL,attr,omitempty"`
	Type       string      `xml:"TYPE,attr"`
	Profile    string      `xml:"PROFILE,attr"`
	Hdr        metsHdr     `xml:"metsHdr"`
	DmdSecs    []mdSec     `xml:"dmdSec"`
	AmdSec     *amdSec     `xml:"amdSec,omitempty"`
	FileSec    *fileSec    `xml:"fileSec,omitempty"`
	StructMaps []structMap `xml:"structMap"`
}

// metsHdr deliberately has no CREATEDATE: regenerating an unchanged item must
// yield byte-identical output so the manifest checksum is stable.
type metsHdr struct {
	LastModDate string      `xml:"LASTMODDATE,attr,omitempty"`
	Agents      []metsAgent `xml:"agent"`
}

type metsAgent struct {
	Role      string `xml:"ROLE,attr"`
	OtherRole string `xml:"OTHERROLE,attr,omitempty"`
	Type      string `xml:"TYPE,attr"`
	OtherType string `xml:"OTHERTYPE,attr,omitempty"`
	Name      string `xml:"name"`
}

type mdSec struct {
	ID     string `xml:"ID,attr"`
	MdWrap mdWrap `xml:"mdWrap"`
}

type mdWrap struct {
	MDType      string  `xml:"MDTYPE,attr"`
	OtherMDType string  `xml:"OTHERMDTYPE,attr,omitempty"`
	XMLData     xmlData `xml:"xmlData"`
}

type xmlData struct {
	Inner []byte `xml:",innerxml"`
}

type amdSec struct {
	ID          string  `xml:"ID,attr"`
	TechMDs     []mdSec `xml:"techMD"`
	RightsMDs   []mdSec `xml:"rightsMD"`
	SourceMDs   []mdSec `xml:"sourceMD"`
	DigiprovMDs []mdSec `xml:"digiprovMD"`
}

type fileSec struct {
	FileGrps []fileGrp `xml:"fileGrp"`
}

type fileGrp struct {
	Use   string     `xml:"USE,attr"`
	Files []metsFile `xml:"file"`
}

type metsFile struct {
	ID           string `xml:"ID,attr"`
	MIMEType     string `xml:"MIMETYPE,attr,omitempty"`
	Size         int64  `xml:"SIZE,attr"`
	Checksum     string `xml:"CHECKSUM,attr,omitempty"`
	ChecksumType string `xml:"CHECKSUMTYPE,attr,omitempty"`
	FLocat       fLocat `xml:"FLocat"`
}

type fLocat struct {
	LocType string `xml:"LOCTYPE,attr"`
	Href    string `xml:"xlink:href,attr"`
}

type structMap struct {
	ID    string  `xml:"ID,attr"`
	Label string  `xml:"LABEL,attr,omitempty"`
	Type  string  `xml:"TYPE,attr,omitempty"`
	Div   metsDiv `xml:"div"`
}

type metsDiv struct {
	ID    string     `xml:"ID,attr"`
	Type  string     `xml:"TYPE,attr,omitempty"`
	DmdID string     `xml:"DMDID,attr,omitempty"`
	Mptrs []metsMptr `xml:"mptr"`
	Fptrs []metsFptr `xml:"fptr"`
	Divs  []metsDiv  `xml:"div"`
}

type metsMptr struct {
	LocType string `xml:"LOCTYPE,attr"`
	Href    string `xml:"xlink:href,attr"`
}

type metsFptr struct {
	FileID string `xml:"FILEID,attr"`
}

// SiteInfo identifies the hosting repository inside generated manifests.
type SiteInfo struct {
	// Handle is the site-level persistent identifier, used as custodian.
	Handle string
	// Name is the software agent string recorded as manifest creator.
	Name string
	// URL is the public base URL of the repository.
	URL string
}

// AIPOptions tune a single manifest generation run.
type AIPOptions struct {
	// ManifestOnly emits file references instead of packaging content; the
	// archival pipeline always runs manifest-only.
	ManifestOnly bool
	// Validate runs structural checks on the document before it is written.
	Validate bool
	// IncludeBundles restricts the fileSec to the named bundles; empty means
	// every bundle. ExcludeBundles is applied after.
	IncludeBundles []string
	ExcludeBundles []string
}

// AIPWriter materializes an item snapshot into a METS archival manifest and
// stores it through the digest sink, so the resulting bitstream carries the
// manifest's size and checksum.
type AIPWriter struct {
	store    *bitstore.Store
	registry *Registry
	sections SectionConfig
	site     SiteInfo
	log      zerolog.Logger
}

func NewAIPWriter(store *bitstore.Store, registry *Registry, sections SectionConfig, site SiteInfo) *AIPWriter {
	if sections.Descriptive == "" {
		sections.Descriptive = "MODS, DIM"
	}
	if sections.Technical == "" {
		sections.Technical = "PREMIS"
	}
	if sections.Rights == "" {
		sections.Rights = "METSRights"
	}
	if sections.Source == "" {
		sections.Source = "AIP-TECHMD"
	}
	return &AIPWriter{
		store:    store,
		registry: registry,
		sections: sections,
		site:     site,
		log:      pkglogger.Component("packager.aip"),
	}
}

// Write generates the manifest and returns the finalized bitstream row. On
// any failure the allocated sink is aborted and nothing is left behind.
func (w *AIPWriter) Write(ctx context.Context, item *domain.Item, opts AIPOptions) (*domain.Bitstream, error) {
	timer := prometheus.NewTimer(metrics.ManifestGenerationDuration.WithLabelValues("aip"))
	defer timer.ObserveDuration()

	sink, err := w.store.Open(ctx, METSFormat)
	if err != nil {
		return nil, err
	}

	doc, err := w.buildDocument(item, opts)
	if err != nil {
		w.store.Abort(ctx, sink)
		return nil, err
	}
	if opts.Validate {
		if err := validateManifest(doc); err != nil {
			w.store.Abort(ctx, sink)
			return nil, err
		}
	}

	if _, err := sink.Write([]byte(xml.Header)); err != nil {
		w.store.Abort(ctx, sink)
		return nil, fmt.Errorf("%w: writing manifest: %v", common.ErrStorageFailure, err)
	}
	enc := xml.NewEncoder(sink)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		w.store.Abort(ctx, sink)
		return nil, fmt.Errorf("%w: encoding manifest: %v", common.ErrStorageFailure, err)
	}

	sink.Bitstream().Name = manifestName(item, "mets.xml")
	sink.Bitstream().Source = w.site.Name
	if err := sink.Close(ctx); err != nil {
		w.store.Abort(ctx, sink)
		return nil, err
	}

	metrics.ManifestsGenerated.WithLabelValues("aip").Inc()
	w.log.Info().
		Uint64("item_id", item.ID).
		Str("handle", item.Handle).
		Uint64("bitstream_id", sink.Bitstream().ID).
		Int64("size", sink.ByteCount()).
		Msg("aip manifest written")
	return sink.Bitstream(), nil
}

func (w *AIPWriter) buildDocument(item *domain.Item, opts AIPOptions) (*metsDocument, error) {
	ids := newIDGen()

	doc := &metsDocument{
		XMLNS:      METSFormat,
		XMLNSXlink: xlinkNS,
		ID:         ids.next("mets"),
		OBJID:      objID(item),
		Label:      "Archival Information Package",
		Type:       "ITEM",
		Profile:    AIPProfile,
		Hdr: metsHdr{
			LastModDate: item.LastModified.UTC().Format("2006-01-02T15:04:05Z"),
			Agents: []metsAgent{
				{Role: "CUSTODIAN", Type: "OTHER", OtherType: "REPOSITORY", Name: "hdl:" + w.site.Handle},
				{Role: "CREATOR", Type: "OTHER", OtherType: "SOFTWARE", Name: w.site.Name},
			},
		},
	}

	dmd, err := w.runSection(item, ids, "dmd", w.sections.Descriptive)
	if err != nil {
		return nil, err
	}
	doc.DmdSecs = dmd

	tech, err := w.runSection(item, ids, "tech", w.sections.Technical)
	if err != nil {
		return nil, err
	}
	rights, err := w.runSection(item, ids, "rights", w.sections.Rights)
	if err != nil {
		return nil, err
	}
	source, err := w.runSection(item, ids, "source", w.sections.Source)
	if err != nil {
		return nil, err
	}
	prov, err := w.runSection(item, ids, "prov", w.sections.Provenance)
	if err != nil {
		return nil, err
	}
	if len(tech)+len(rights)+len(source)+len(prov) > 0 {
		doc.AmdSec = &amdSec{
			ID:          ids.next("amd"),
			TechMDs:     tech,
			RightsMDs:   rights,
			SourceMDs:   source,
			DigiprovMDs: prov,
		}
	}

	fsec, fptrs := w.buildFileSec(item, ids, opts)
	doc.FileSec = fsec

	itemDiv := metsDiv{
		ID:    ids.next("div"),
		Type:  "Item",
		DmdID: joinIDs(dmd),
		Fptrs: fptrs,
	}
	doc.StructMaps = []structMap{{
		ID:    ids.next("smap"),
		Label: "Content",
		Type:  "LOGICAL",
		Div:   itemDiv,
	}}
	if item.ParentHandle != "" {
		doc.StructMaps = append(doc.StructMaps, structMap{
			ID:    ids.next("smap"),
			Label: "Parent",
			Type:  "LOGICAL",
			Div: metsDiv{
				ID:    ids.next("div"),
				Type:  "AIP Parent Link",
				Mptrs: []metsMptr{{LocType: "HANDLE", Href: "hdl:" + item.ParentHandle}},
			},
		})
	}
	return doc, nil
}

func (w *AIPWriter) runSection(item *domain.Item, ids *idGen, prefix, names string) ([]mdSec, error) {
	var secs []mdSec
	for _, name := range SplitNames(names) {
		cw, err := w.registry.Lookup(name)
		if err != nil {
			return nil, err
		}
		if !cw.CanDisseminate(item) {
			continue
		}
		frag, err := cw.Disseminate(item)
		if err != nil {
			return nil, fmt.Errorf("%w: crosswalk %q: %v", common.ErrManifestValidation, name, err)
		}
		wrap := mdWrap{MDType: cw.MDType(), XMLData: xmlData{Inner: frag}}
		if wrap.MDType == "OTHER" {
			wrap.OtherMDType = cw.Name()
		}
		secs = append(secs, mdSec{ID: ids.next(prefix), MdWrap: wrap})
	}
	return secs, nil
}

func (w *AIPWriter) buildFileSec(item *domain.Item, ids *idGen, opts AIPOptions) (*fileSec, []metsFptr) {
	include := map[string]bool{}
	for _, n := range opts.IncludeBundles {
		include[n] = true
	}
	exclude := map[string]bool{}
	for _, n := range opts.ExcludeBundles {
		exclude[n] = true
	}

	var grps []fileGrp
	var fptrs []metsFptr
	for _, bundle := range item.Bundles {
		if len(include) > 0 && !include[bundle.Name] {
			continue
		}
		if exclude[bundle.Name] {
			continue
		}
		bs := make([]domain.Bitstream, len(bundle.Bitstreams))
		copy(bs, bundle.Bitstreams)
		sort.Slice(bs, func(i, j int) bool { return bs[i].ID < bs[j].ID })

		grp := fileGrp{Use: bundle.Name}
		for _, b := range bs {
			fileID := ids.next("file")
			grp.Files = append(grp.Files, metsFile{
				ID:           fileID,
				MIMEType:     b.Format,
				Size:         b.SizeBytes,
				Checksum:     b.Checksum,
				ChecksumType: b.ChecksumAlgorithm,
				FLocat:       fLocat{LocType: "URL", Href: w.store.AbsoluteURL(&b)},
			})
			fptrs = append(fptrs, metsFptr{FileID: fileID})
		}
		grps = append(grps, grp)
	}
	if len(grps) == 0 {
		return nil, nil
	}
	return &fileSec{FileGrps: grps}, fptrs
}

func validateManifest(doc *metsDocument) error {
	if doc.OBJID == "" {
		return fmt.Errorf("%w: manifest has no OBJID", common.ErrManifestValidation)
	}
	if len(doc.DmdSecs) == 0 {
		return fmt.Errorf("%w: manifest has no descriptive metadata section", common.ErrManifestValidation)
	}
	if len(doc.StructMaps) == 0 {
		return fmt.Errorf("%w: manifest has no structMap", common.ErrManifestValidation)
	}
	if doc.FileSec != nil {
		for _, grp := range doc.FileSec.FileGrps {
			for _, f := range grp.Files {
				if f.Checksum == "" || f.ChecksumType == "" {
					return fmt.Errorf("%w: file %s in bundle %s has no fixity", common.ErrManifestValidation, f.ID, grp.Use)
				}
				if f.FLocat.Href == "" {
					return fmt.Errorf("%w: file %s in bundle %s has no location", common.ErrManifestValidation, f.ID, grp.Use)
				}
			}
		}
	}
	return nil
}

func objID(item *domain.Item) string {
	if item.Handle != "" {
		return "hdl:" + item.Handle
	}
	return fmt.Sprintf("item:%d", item.ID)
}

func manifestName(item *domain.Item, suffix string) string {
	if item.Handle != "" {
		return strings.ReplaceAll(item.Handle, "/", "-") + "-" + suffix
	}
	return fmt.Sprintf("item-%d-%s", item.ID, suffix)
}

func joinIDs(secs []mdSec) string {
	ids := make([]string, len(secs))
	for i, s := range secs {
		ids[i] = s.ID
	}
	return strings.Join(ids, " ")
}

// idGen hands out sequential element ids. A fresh generator per document
// keeps ids deterministic across regenerations.
type idGen struct {
	n int
}

func newIDGen() *idGen { return &idGen{} }

func (g *idGen) next(prefix string) string {
	g.n++
	return fmt.Sprintf("%s_%d", prefix, g.n)
}
