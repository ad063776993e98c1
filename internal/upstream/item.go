package upstream

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// FlexString tolerates upstream fields that arrive as either a JSON string
// or a bare number. Identifier and count fields switch between the two
// representations depending on which upstream backend served the page.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*f = ""
		return nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

func (f FlexString) String() string {
	return strings.TrimSpace(string(f))
}

// FlexInt tolerates numeric fields that arrive as strings.
type FlexInt int

func (f *FlexInt) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*f = 0
		return nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		parsed, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			*f = 0
			return nil
		}
		*f = FlexInt(parsed)
		return nil
	}
	var n float64
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return err
	}
	*f = FlexInt(int(n))
	return nil
}

func (f FlexInt) Int() int {
	return int(f)
}

// Item is the raw upstream record. The API serves several historical shapes
// for the same logical type, so most fields have at least one alternative
// spelling; the transformer walks the alternatives in order.
type Item struct {
	ID     FlexString `json:"id"`
	Codigo FlexString `json:"codigo"`

	Titulo string `json:"titulo"`
	Title  string `json:"title"`
	Nome   string `json:"nome"`

	Autor  string `json:"autor"`
	Author string `json:"author"`

	Descricao   string `json:"descricao"`
	Description string `json:"description"`
	Resumo      string `json:"resumo"`

	DataPublicacao string `json:"data_publicacao"`
	PublishedAt    string `json:"published_at"`

	Categorias []string `json:"categorias"`

	Thumbnail string `json:"thumbnail"`
	Imagem    string `json:"imagem"`
	Capa      string `json:"capa"`

	Paginas         FlexInt `json:"paginas"`
	DuracaoSegundos FlexInt `json:"duracao"`
	TipoDocumento   string  `json:"tipo_documento"`
	Idioma          string  `json:"idioma"`

	Programa      string  `json:"programa"`
	PodcastTitulo string  `json:"podcast_titulo"`
	Canal         string  `json:"canal"`
	Episodios     FlexInt `json:"episodios"`

	EmbedURL string `json:"embed_url"`
	PDFURL   string `json:"pdf_url"`
}

// Envelope is the paginated list response shape.
type Envelope struct {
	Conteudo   []Item  `json:"conteudo"`
	Total      FlexInt `json:"total"`
	TotalPages FlexInt `json:"totalPages"`
	Page       FlexInt `json:"page"`
	Limit      FlexInt `json:"limit"`
}
