// Package button renders the "Deploy to Azure" badge for the ARM template
// that installs the registrar.
package button

import (
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

const (
	badgeImage   = "https://aka.ms/deploytoazurebutton"
	portalPrefix = "https://portal.azure.com/#create/Microsoft.Template/uri/"
)

var ErrMissingURL = errors.New("both the ARM template and the UI definition URL are required")

// PortalURL is the portal deep link that opens the template with its
// custom UI definition.
func PortalURL(armTemplate, uiDefinition string) (string, error) {
	if armTemplate == "" || uiDefinition == "" {
		return "", ErrMissingURL
	}
	return portalPrefix + escape(armTemplate) + "/createUIDefinitionUri/" + escape(uiDefinition), nil
}

// Markdown is the badge linking to PortalURL.
func Markdown(armTemplate, uiDefinition string) (string, error) {
	link, err := PortalURL(armTemplate, uiDefinition)
	if err != nil {
		return "", err
	}
	return "[![Deploy to Azure](" + badgeImage + ")](" + link + ")", nil
}

// escape percent-encodes every reserved character, including '/'.
// url.QueryEscape turns spaces into '+', which the portal does not decode.
func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
