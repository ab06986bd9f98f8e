package content

import "encoding/json"

// wireReference is the JSON form of a Reference.
type wireReference struct {
	URI        string            `json:"uri"`
	MediaType  string            `json:"mediaType"`
	Size       *int64            `json:"size,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (r Reference) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireReference{
		URI:        r.uri,
		MediaType:  r.mediaType,
		Size:       r.size,
		Attributes: r.attributes,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Reference) UnmarshalJSON(data []byte) error {
	var wire wireReference
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	r.uri = wire.URI
	r.mediaType = wire.MediaType
	r.size = wire.Size
	r.attributes = wire.Attributes
	return nil
}
