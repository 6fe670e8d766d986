package xml

import (
	"strings"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyp0633/libmapirecur/recurrence"
)

func sampleBlob(t *testing.T) *recurrence.Blob {
	t.Helper()
	start := time.Date(2024, 1, 31, 9, 0, 0, 0, time.UTC)
	it, err := recurrence.NewItem(recurrence.Properties{Subject: "Review"}, start, start.Add(time.Hour), time.UTC,
		recurrence.PatternSpec{Frequency: recurrence.FrequencyMonthly, Count: 6})
	require.NoError(t, err)
	_, err = it.CreateException(time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), recurrence.Overrides{
		Subject:    mo.Some("Café review"),
		Location:   mo.Some("Lab"),
		BusyStatus: mo.Some(recurrence.BusyTentative),
	})
	require.NoError(t, err)
	require.NoError(t, it.DeleteException(time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC)))

	b, err := recurrence.Decode(it.Raw())
	require.NoError(t, err)
	b.ReservedBlock2 = []byte{0xDE, 0xAD}
	return b
}

func TestRender_Fields(t *testing.T) {
	doc := Render(sampleBlob(t))
	root := doc.Root()
	require.NotNil(t, root)
	assert.Equal(t, TagBlob, root.Tag)
	assert.Equal(t, "true", root.SelectAttrValue("extended", ""))

	freq := root.FindElement("./Pattern/Frequency")
	require.NotNil(t, freq)
	assert.Equal(t, "8204", freq.Text())
	assert.Equal(t, "Monthly", freq.SelectAttrValue("name", ""))

	start := root.FindElement("./Pattern/StartDate")
	require.NotNil(t, start)
	assert.Equal(t, "2024-01-31T00:00", start.SelectAttrValue("wall", ""))

	deleted := root.FindElements("./Deleted/Date")
	require.Len(t, deleted, 1)
	assert.Equal(t, "2024-04-30T00:00", deleted[0].SelectAttrValue("wall", ""))

	exc := root.FindElement("./Exceptions/Exception")
	require.NotNil(t, exc)
	assert.Equal(t, "Café review", exc.SelectElement("Subject").Text())
	assert.Equal(t, "1", exc.SelectElement("BusyStatus").Text())
	assert.Nil(t, exc.SelectElement("MeetingType"))
	assert.NotNil(t, exc.FindElement("./Extended/ChangeHighlight"))
	assert.Equal(t, "Lab", exc.FindElement("./Extended/Location").Text())

	assert.Equal(t, "dead", root.SelectElement("ReservedBlock2").Text())
	assert.Nil(t, root.SelectElement("ReservedBlock1"))
}

func TestRender_ParseRoundTrip(t *testing.T) {
	b := sampleBlob(t)
	text, err := Render(b).WriteToString()
	require.NoError(t, err)

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromString(text))
	parsed, err := Parse(doc)
	require.NoError(t, err)
	assert.Equal(t, b, parsed)

	raw, err := recurrence.Encode(parsed)
	require.NoError(t, err)
	again, err := recurrence.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, b, again)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		xml  string
		want string
	}{
		{name: "empty", xml: "", want: "empty document"},
		{name: "wrong root", xml: "<multistatus/>", want: "invalid root tag"},
		{name: "no pattern", xml: "<RecurrenceBlob/>", want: "missing Pattern"},
		{name: "missing field", xml: "<RecurrenceBlob><Pattern><ReaderVersion>1</ReaderVersion></Pattern></RecurrenceBlob>", want: "missing WriterVersion"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := etree.NewDocument()
			if tt.xml != "" {
				require.NoError(t, doc.ReadFromString(tt.xml))
			}
			_, err := Parse(doc)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	text, err := Render(sampleBlob(t)).WriteToString()
	require.NoError(t, err)
	bad := strings.Replace(text, "<Period>1</Period>", "<Period>one</Period>", 1)
	require.NotEqual(t, text, bad)
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromString(bad))
	_, err = Parse(doc)
	assert.ErrorContains(t, err, "Period")
}
