package fda

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDirectory = "PRODUCTID\tPRODUCTNDC\tPROPRIETARYNAME\tPROPRIETARYNAMESUFFIX\tNONPROPRIETARYNAME\tDOSAGEFORMNAME\tROUTENAME\tSTARTMARKETINGDATE\tENDMARKETINGDATE\tLABELERNAME\tACTIVE_NUMERATOR_STRENGTH\tACTIVE_INGRED_UNIT\tNDCPACKAGECODE\n" +
	"0069-3150_a1\t0069-3150\tAmoxil\t\tAmoxicillin\tCAPSULE\tORAL\t20190301\t\tPfizer Laboratories\t500\tmg/1\t0069-3150-83\n" +
	"50090-339_b2\t50090-339\tLisinopril\tER\tLisinopril\tTABLET\tORAL\tbaddate\t20301231\tA-S Medication Solutions\t10\tmg/1\t\n" +
	"xxxx_c3\t\tOrphan Row\t\t\t\t\t\t\tNobody\t\t\t\n"

func TestLoadParsesDirectoryRows(t *testing.T) {
	records, err := NewLoader().Load(strings.NewReader(sampleDirectory))
	require.NoError(t, err)
	require.Len(t, records, 2)

	amox := records[0]
	assert.Equal(t, "0069-3150-83", amox.NdcRaw, "package code preferred over product code")
	assert.Equal(t, "Amoxil", amox.ProductName)
	assert.Equal(t, "Amoxicillin", amox.GenericName)
	assert.Equal(t, "Pfizer Laboratories", amox.LabelerName)
	assert.Equal(t, "CAPSULE", amox.DosageForm)
	assert.Equal(t, "500 mg/1", amox.Strength)
	assert.Equal(t, "ORAL", amox.Route)
	require.NotNil(t, amox.MarketingStart)
	assert.Equal(t, time.Date(2019, 3, 1, 0, 0, 0, 0, time.UTC), *amox.MarketingStart)
	assert.Nil(t, amox.MarketingEnd)

	lisin := records[1]
	assert.Equal(t, "50090-339", lisin.NdcRaw, "falls back to product code without a package code")
	assert.Equal(t, "Lisinopril ER", lisin.ProductName, "suffix appended to proprietary name")
	assert.Nil(t, lisin.MarketingStart, "unparseable date maps to nil")
	require.NotNil(t, lisin.MarketingEnd)
}

func TestLoadSkipsRowsWithoutNdc(t *testing.T) {
	records, err := NewLoader().Load(strings.NewReader(sampleDirectory))
	require.NoError(t, err)
	for _, r := range records {
		assert.NotEmpty(t, r.NdcRaw)
	}
}

func TestLoadColumnOrderIndependent(t *testing.T) {
	reordered := "NDCPACKAGECODE\tPROPRIETARYNAME\tPRODUCTNDC\n" +
		"0069-3150-83\tAmoxil\t0069-3150\n"

	records, err := NewLoader().Load(strings.NewReader(reordered))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "0069-3150-83", records[0].NdcRaw)
	assert.Equal(t, "Amoxil", records[0].ProductName)
}

func TestLoadMissingProductNdcColumn(t *testing.T) {
	_, err := NewLoader().Load(strings.NewReader("FOO\tBAR\n1\t2\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PRODUCTNDC")
}

func TestLoadShortRowsTolerated(t *testing.T) {
	data := "PRODUCTNDC\tPROPRIETARYNAME\tNONPROPRIETARYNAME\n" +
		"0069-3150\tAmoxil\n"

	records, err := NewLoader().Load(strings.NewReader(data))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Empty(t, records[0].GenericName)
}
