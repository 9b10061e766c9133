package model

import (
	"encoding/json"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// Answer holds a submitted answer. On the wire and in storage it is either a
// plain string (freeText, singleChoice) or an array of strings (multiChoice).
type Answer struct {
	Text    string
	Choices []string
	IsList  bool
}

// TextAnswer builds a scalar answer
func TextAnswer(s string) *Answer {
	return &Answer{Text: s}
}

// ChoicesAnswer builds a list answer
func ChoicesAnswer(choices ...string) *Answer {
	if choices == nil {
		choices = []string{}
	}
	return &Answer{Choices: choices, IsList: true}
}

// Clone returns a deep copy
func (a Answer) Clone() Answer {
	out := a
	if a.Choices != nil {
		out.Choices = append([]string(nil), a.Choices...)
	}
	return out
}

// String renders the answer for transcripts
func (a *Answer) String() string {
	if a == nil {
		return ""
	}
	if !a.IsList {
		return a.Text
	}
	b, _ := json.Marshal(a.Choices)
	return string(b)
}

var errAnswerShape = errors.New("answer must be a string or a list of strings")

func (a Answer) MarshalJSON() ([]byte, error) {
	if a.IsList {
		if a.Choices == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(a.Choices)
	}
	return json.Marshal(a.Text)
}

func (a *Answer) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*a = Answer{Text: s}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return errAnswerShape
	}
	if list == nil {
		return errAnswerShape
	}
	*a = Answer{Choices: list, IsList: true}
	return nil
}

func (a Answer) MarshalBSONValue() (bsontype.Type, []byte, error) {
	if a.IsList {
		choices := a.Choices
		if choices == nil {
			choices = []string{}
		}
		return bson.MarshalValue(choices)
	}
	return bson.MarshalValue(a.Text)
}

func (a *Answer) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	raw := bson.RawValue{Type: t, Value: data}
	switch t {
	case bson.TypeString:
		var s string
		if err := raw.Unmarshal(&s); err != nil {
			return err
		}
		*a = Answer{Text: s}
	case bson.TypeArray:
		var list []string
		if err := raw.Unmarshal(&list); err != nil {
			return err
		}
		if list == nil {
			list = []string{}
		}
		*a = Answer{Choices: list, IsList: true}
	default:
		return fmt.Errorf("decode answer: unexpected bson type %s", t)
	}
	return nil
}
