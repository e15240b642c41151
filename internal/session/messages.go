package session

import (
	"log"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"

	sessiondomain "authsession/internal/session/domain"
)

var supportedLanguages = []language.Tag{
	language.English,
	language.Spanish,
	language.French,
	language.German,
}

var (
	languageMatcher = language.NewMatcher(supportedLanguages)
	messageCatalog  = buildCatalog()
)

var translations = map[sessiondomain.ErrorKind]map[language.Tag]string{
	sessiondomain.KindInvalidCredentials: {
		language.English: "Incorrect email or password.",
		language.Spanish: "Correo electrónico o contraseña incorrectos.",
		language.French:  "Adresse e-mail ou mot de passe incorrect.",
		language.German:  "E-Mail-Adresse oder Passwort ist falsch.",
	},
	sessiondomain.KindNetworkUnavailable: {
		language.English: "No connection. Check your network and try again.",
		language.Spanish: "Sin conexión. Revisa tu red e inténtalo de nuevo.",
		language.French:  "Pas de connexion. Vérifiez votre réseau et réessayez.",
		language.German:  "Keine Verbindung. Prüfe dein Netzwerk und versuche es erneut.",
	},
	sessiondomain.KindServerError: {
		language.English: "Something went wrong on our side. Please try again later.",
		language.Spanish: "Algo salió mal en nuestro servidor. Inténtalo más tarde.",
		language.French:  "Une erreur est survenue sur nos serveurs. Réessayez plus tard.",
		language.German:  "Auf unserer Seite ist ein Fehler aufgetreten. Bitte versuche es später erneut.",
	},
	sessiondomain.KindTokenExpired: {
		language.English: "Your session has expired. Please log in again.",
		language.Spanish: "Tu sesión ha caducado. Inicia sesión de nuevo.",
		language.French:  "Votre session a expiré. Veuillez vous reconnecter.",
		language.German:  "Deine Sitzung ist abgelaufen. Bitte melde dich erneut an.",
	},
	sessiondomain.KindRefreshFailed: {
		language.English: "Please log in again.",
		language.Spanish: "Inicia sesión de nuevo.",
		language.French:  "Veuillez vous reconnecter.",
		language.German:  "Bitte melde dich erneut an.",
	},
	sessiondomain.KindInvalidState: {
		language.English: "That action is not available right now.",
		language.Spanish: "Esa acción no está disponible en este momento.",
		language.French:  "Cette action n'est pas disponible pour le moment.",
		language.German:  "Diese Aktion ist gerade nicht verfügbar.",
	},
	sessiondomain.KindStorageFailure: {
		language.English: "Could not access secure storage on this device.",
		language.Spanish: "No se pudo acceder al almacenamiento seguro del dispositivo.",
		language.French:  "Impossible d'accéder au stockage sécurisé de l'appareil.",
		language.German:  "Auf den sicheren Speicher des Geräts konnte nicht zugegriffen werden.",
	},
	sessiondomain.KindInitialization: {
		language.English: "We could not restore your session. Please log in.",
		language.Spanish: "No pudimos restaurar tu sesión. Inicia sesión.",
		language.French:  "Impossible de restaurer votre session. Veuillez vous connecter.",
		language.German:  "Deine Sitzung konnte nicht wiederhergestellt werden. Bitte melde dich an.",
	},
}

func buildCatalog() *catalog.Builder {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for kind, byLang := range translations {
		for tag, msg := range byLang {
			if err := b.SetString(tag, string(kind), msg); err != nil {
				log.Printf("session: message catalog %s/%s: %v", kind, tag, err)
			}
		}
	}
	return b
}

// Message returns the user-facing text for kind in the language closest to lang (a BCP 47 tag such as "es-MX").
// Unknown or empty languages fall back to English.
func Message(kind sessiondomain.ErrorKind, lang string) string {
	if _, ok := translations[kind]; !ok {
		return string(kind)
	}
	p := message.NewPrinter(matchLanguage(lang), message.Catalog(messageCatalog))
	return p.Sprintf(string(kind))
}

func matchLanguage(lang string) language.Tag {
	if lang == "" {
		return language.English
	}
	tag, err := language.Parse(lang)
	if err != nil {
		return language.English
	}
	_, idx, conf := languageMatcher.Match(tag)
	if conf == language.No {
		return language.English
	}
	return supportedLanguages[idx]
}
