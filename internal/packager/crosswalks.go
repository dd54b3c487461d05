package packager

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"sort"

	"github.com/openarchive/preserv-backend/internal/domain"
)

// RegisterBuiltins installs the crosswalks a stock deployment ships with.
func RegisterBuiltins(r *Registry) {
	r.Register(DIMCrosswalk{})
	r.Register(MODSCrosswalk{})
	r.Register(PREMISCrosswalk{})
	r.Register(TechMDCrosswalk{})
	r.Register(METSRightsCrosswalk{})
}

func sortedMetadata(item *domain.Item) []domain.MetadataValue {
	md := make([]domain.MetadataValue, len(item.Metadata))
	copy(md, item.Metadata)
	sort.SliceStable(md, func(i, j int) bool {
		a, b := md[i], md[j]
		if a.Schema != b.Schema {
			return a.Schema < b.Schema
		}
		if a.Element != b.Element {
			return a.Element < b.Element
		}
		if a.Qualifier != b.Qualifier {
			return a.Qualifier < b.Qualifier
		}
		if a.Language != b.Language {
			return a.Language < b.Language
		}
		return a.Value < b.Value
	})
	return md
}

func escape(s string) string {
	var buf bytes.Buffer
	xml.EscapeText(&buf, []byte(s)) //nolint:errcheck // bytes.Buffer never fails
	return buf.String()
}

// DIMCrosswalk emits the internal metadata registry as a flat field list.
type DIMCrosswalk struct{}

func (DIMCrosswalk) Name() string                          { return "DIM" }
func (DIMCrosswalk) MDType() string                        { return "OTHER" }
func (DIMCrosswalk) CanDisseminate(item *domain.Item) bool { return item != nil }

func (DIMCrosswalk) Disseminate(item *domain.Item) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`<dim:dim xmlns:dim="http://www.openarchive.org/xmlns/dim" objectType="ITEM">`)
	for _, mv := range sortedMetadata(item) {
		buf.WriteString(`<dim:field mdschema="` + escape(mv.Schema) + `" element="` + escape(mv.Element) + `"`)
		if mv.Qualifier != "" {
			buf.WriteString(` qualifier="` + escape(mv.Qualifier) + `"`)
		}
		if mv.Language != "" {
			buf.WriteString(` lang="` + escape(mv.Language) + `"`)
		}
		buf.WriteString(`>` + escape(mv.Value) + `</dim:field>`)
	}
	buf.WriteString(`</dim:dim>`)
	return buf.Bytes(), nil
}

// MODSCrosswalk emits a minimal MODS record for interoperability with
// harvesters that do not understand the internal field list.
type MODSCrosswalk struct{}

func (MODSCrosswalk) Name() string                          { return "MODS" }
func (MODSCrosswalk) MDType() string                        { return "MODS" }
func (MODSCrosswalk) CanDisseminate(item *domain.Item) bool { return item != nil }

func (MODSCrosswalk) Disseminate(item *domain.Item) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`<mods:mods xmlns:mods="http://www.loc.gov/mods/v3">`)
	if title := item.Title(); title != "" {
		buf.WriteString(`<mods:titleInfo><mods:title>` + escape(title) + `</mods:title></mods:titleInfo>`)
	}
	for _, mv := range sortedMetadata(item) {
		switch {
		case mv.Schema == "dc" && mv.Element == "contributor":
			buf.WriteString(`<mods:name><mods:namePart>` + escape(mv.Value) + `</mods:namePart></mods:name>`)
		case mv.Schema == "dc" && mv.Element == "subject":
			buf.WriteString(`<mods:subject><mods:topic>` + escape(mv.Value) + `</mods:topic></mods:subject>`)
		case mv.Schema == "dc" && mv.Element == "description" && mv.Qualifier == "abstract":
			buf.WriteString(`<mods:abstract>` + escape(mv.Value) + `</mods:abstract>`)
		case mv.Schema == "dc" && mv.Element == "language":
			buf.WriteString(`<mods:language><mods:languageTerm>` + escape(mv.Value) + `</mods:languageTerm></mods:language>`)
		}
	}
	if item.Handle != "" {
		buf.WriteString(`<mods:identifier type="hdl">` + escape(item.Handle) + `</mods:identifier>`)
	}
	buf.WriteString(`</mods:mods>`)
	return buf.Bytes(), nil
}

// PREMISCrosswalk records preservation fixity for every bitstream in the
// item, sorted by bitstream ID so output is stable.
type PREMISCrosswalk struct{}

func (PREMISCrosswalk) Name() string                          { return "PREMIS" }
func (PREMISCrosswalk) MDType() string                        { return "PREMIS" }
func (PREMISCrosswalk) CanDisseminate(item *domain.Item) bool { return item != nil }

func (PREMISCrosswalk) Disseminate(item *domain.Item) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`<premis:premis xmlns:premis="http://www.loc.gov/standards/premis">`)
	buf.WriteString(`<premis:object><premis:objectIdentifier>`)
	buf.WriteString(`<premis:objectIdentifierType>handle</premis:objectIdentifierType>`)
	buf.WriteString(`<premis:objectIdentifierValue>` + escape(item.Handle) + `</premis:objectIdentifierValue>`)
	buf.WriteString(`</premis:objectIdentifier></premis:object>`)
	type entry struct {
		b      domain.Bitstream
		bundle string
	}
	var entries []entry
	for _, bundle := range item.Bundles {
		for _, b := range bundle.Bitstreams {
			entries = append(entries, entry{b: b, bundle: bundle.Name})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].b.ID < entries[j].b.ID })
	for _, e := range entries {
		buf.WriteString(`<premis:object>`)
		buf.WriteString(`<premis:objectIdentifier>`)
		buf.WriteString(`<premis:objectIdentifierType>bitstream</premis:objectIdentifierType>`)
		buf.WriteString(fmt.Sprintf(`<premis:objectIdentifierValue>%d</premis:objectIdentifierValue>`, e.b.ID))
		buf.WriteString(`</premis:objectIdentifier>`)
		buf.WriteString(`<premis:objectCharacteristics>`)
		buf.WriteString(`<premis:fixity>`)
		buf.WriteString(`<premis:messageDigestAlgorithm>` + escape(e.b.ChecksumAlgorithm) + `</premis:messageDigestAlgorithm>`)
		buf.WriteString(`<premis:messageDigest>` + escape(e.b.Checksum) + `</premis:messageDigest>`)
		buf.WriteString(`</premis:fixity>`)
		buf.WriteString(fmt.Sprintf(`<premis:size>%d</premis:size>`, e.b.SizeBytes))
		buf.WriteString(`</premis:objectCharacteristics>`)
		buf.WriteString(`</premis:object>`)
	}
	buf.WriteString(`</premis:premis>`)
	return buf.Bytes(), nil
}

// TechMDCrosswalk emits the archival technical section: provenance of the
// object itself rather than its files.
type TechMDCrosswalk struct{}

func (TechMDCrosswalk) Name() string                          { return "AIP-TECHMD" }
func (TechMDCrosswalk) MDType() string                        { return "OTHER" }
func (TechMDCrosswalk) CanDisseminate(item *domain.Item) bool { return item != nil }

func (TechMDCrosswalk) Disseminate(item *domain.Item) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`<dim:dim xmlns:dim="http://www.openarchive.org/xmlns/dim" objectType="ITEM">`)
	if item.Handle != "" {
		buf.WriteString(`<dim:field mdschema="dc" element="identifier" qualifier="uri">hdl:` + escape(item.Handle) + `</dim:field>`)
	}
	if item.ParentHandle != "" {
		buf.WriteString(`<dim:field mdschema="dc" element="relation" qualifier="isPartOf">hdl:` + escape(item.ParentHandle) + `</dim:field>`)
	}
	buf.WriteString(fmt.Sprintf(`<dim:field mdschema="dc" element="rights" qualifier="accessRights">%s</dim:field>`, accessState(item)))
	buf.WriteString(`</dim:dim>`)
	return buf.Bytes(), nil
}

func accessState(item *domain.Item) string {
	switch {
	case item.Withdrawn:
		return "WITHDRAWN"
	case !item.Discoverable:
		return "RESTRICTED"
	default:
		return "OPEN"
	}
}

// METSRightsCrosswalk emits a rights declaration for the rightsMD section.
type METSRightsCrosswalk struct{}

func (METSRightsCrosswalk) Name() string                          { return "METSRights" }
func (METSRightsCrosswalk) MDType() string                        { return "OTHER" }
func (METSRightsCrosswalk) CanDisseminate(item *domain.Item) bool { return item != nil }

func (METSRightsCrosswalk) Disseminate(item *domain.Item) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`<rights:RightsDeclarationMD xmlns:rights="http://cosimo.stanford.edu/sdr/metsrights/" RIGHTSCATEGORY="LICENSED">`)
	buf.WriteString(`<rights:Context CONTEXTCLASS="GENERAL PUBLIC">`)
	perm := `DISPLAY="true" COPY="false" DUPLICATE="false" MODIFY="false" DELETE="false" PRINT="true"`
	if item.Withdrawn || !item.Discoverable {
		perm = `DISPLAY="false" COPY="false" DUPLICATE="false" MODIFY="false" DELETE="false" PRINT="false"`
	}
	buf.WriteString(`<rights:Permissions ` + perm + `/>`)
	buf.WriteString(`</rights:Context>`)
	buf.WriteString(`</rights:RightsDeclarationMD>`)
	return buf.Bytes(), nil
}
