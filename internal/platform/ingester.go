package platform

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"time"

	"gorm.io/gorm"

	"github.com/openarchive/preserv-backend/internal/common"
	"github.com/openarchive/preserv-backend/internal/domain"
)

// Decode-side manifest model. Matching is by local element name, so the
// writer's namespace prefixes do not matter here.
type ingestMets struct {
	XMLName xml.Name       `xml:"mets"`
	DmdSecs []ingestMdSec  `xml:"dmdSec"`
	FileSec *ingestFileSec `xml:"fileSec"`
}

type ingestMdSec struct {
	MdWrap struct {
		MDType      string `xml:"MDTYPE,attr"`
		OtherMDType string `xml:"OTHERMDTYPE,attr"`
		XMLData     struct {
			Dim *ingestDim `xml:"dim"`
		} `xml:"xmlData"`
	} `xml:"mdWrap"`
}

type ingestDim struct {
	Fields []struct {
		Schema    string `xml:"mdschema,attr"`
		Element   string `xml:"element,attr"`
		Qualifier string `xml:"qualifier,attr"`
		Language  string `xml:"lang,attr"`
		Value     string `xml:",chardata"`
	} `xml:"field"`
}

type ingestFileSec struct {
	FileGrps []struct {
		Use   string `xml:"USE,attr"`
		Files []struct {
			Checksum string `xml:"CHECKSUM,attr"`
		} `xml:"file"`
	} `xml:"fileGrp"`
}

type manifestIngester struct {
	db *gorm.DB
}

// NewManifestIngester builds the restore-path ingester: it replaces an item's
// metadata and bundle links from an archival manifest. Content bytes are not
// moved; file entries are relinked to stored bitstreams by checksum.
func NewManifestIngester(db *gorm.DB) domain.PackageIngester {
	return &manifestIngester{db: db}
}

func (g *manifestIngester) Replace(ctx context.Context, target *domain.Item, manifest io.Reader, params map[string]string) (*domain.Item, error) {
	if target == nil {
		return nil, fmt.Errorf("%w: nil target item", common.ErrInvalidInput)
	}
	var doc ingestMets
	if err := xml.NewDecoder(manifest).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: parsing manifest: %v", common.ErrManifestValidation, err)
	}
	dim := pickDim(&doc)
	if dim == nil {
		return nil, fmt.Errorf("%w: manifest carries no DIM descriptive section", common.ErrManifestValidation)
	}

	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&MetadataRow{}, "item_id = ?", target.ID).Error; err != nil {
			return err
		}
		rows := make([]MetadataRow, 0, len(dim.Fields))
		for place, f := range dim.Fields {
			rows = append(rows, MetadataRow{
				ItemID:    target.ID,
				Schema:    f.Schema,
				Element:   f.Element,
				Qualifier: f.Qualifier,
				Language:  f.Language,
				Value:     f.Value,
				Place:     place,
			})
		}
		if len(rows) > 0 {
			if err := tx.Create(&rows).Error; err != nil {
				return err
			}
		}

		if doc.FileSec != nil {
			if err := tx.Delete(&BundleRow{}, "item_id = ?", target.ID).Error; err != nil {
				return err
			}
			for _, grp := range doc.FileSec.FileGrps {
				for _, f := range grp.Files {
					if f.Checksum == "" {
						continue
					}
					var bs domain.Bitstream
					err := tx.Where("checksum = ? AND deleted = ?", f.Checksum, false).
						Order("bitstream_id ASC").
						First(&bs).Error
					if err != nil {
						return fmt.Errorf("%w: no stored bitstream matches checksum %s", common.ErrBitstreamNotFound, f.Checksum)
					}
					if err := tx.Create(&BundleRow{
						ItemID:      target.ID,
						Name:        grp.Use,
						BitstreamID: bs.ID,
					}).Error; err != nil {
						return err
					}
				}
			}
		}

		return tx.Model(&ItemRow{}).
			Where("item_id = ?", target.ID).
			Update("last_modified", time.Now()).Error
	})
	if err != nil {
		return nil, err
	}
	return NewItemRepository(g.db).Find(ctx, target.ID)
}

// pickDim prefers the explicit DIM section; any DIM payload wins over none.
func pickDim(doc *ingestMets) *ingestDim {
	for _, sec := range doc.DmdSecs {
		if sec.MdWrap.OtherMDType == "DIM" && sec.MdWrap.XMLData.Dim != nil {
			return sec.MdWrap.XMLData.Dim
		}
	}
	for _, sec := range doc.DmdSecs {
		if sec.MdWrap.XMLData.Dim != nil {
			return sec.MdWrap.XMLData.Dim
		}
	}
	return nil
}
