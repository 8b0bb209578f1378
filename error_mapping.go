package t2i

import (
	"errors"

	"github.com/bitop-dev/t2i/internal/generate"
)

var kindNames = map[generate.Kind]Kind{
	generate.KindNoCredential:         KindNoCredential,
	generate.KindNoPrompt:             KindNoPrompt,
	generate.KindAlreadyInFlight:      KindAlreadyInFlight,
	generate.KindModelUnavailable:     KindModelUnavailable,
	generate.KindCrossOriginBlocked:   KindCrossOriginBlocked,
	generate.KindServerErrorExhausted: KindServerErrorExhausted,
	generate.KindModelLoading:         KindModelLoading,
	generate.KindInvalidCredential:    KindInvalidCredential,
	generate.KindAPIReportedError:     KindAPIReportedError,
	generate.KindUnclassified:         KindUnclassified,
}

func mapFailure(err error) error {
	if err == nil {
		return nil
	}
	var f *generate.Failure
	if errors.As(err, &f) {
		k, ok := kindNames[f.Kind]
		if !ok {
			k = KindUnclassified
		}
		return &Error{
			Kind:    k,
			Model:   f.Model,
			Status:  f.Status,
			Message: f.Message,
			Link:    f.Link,
			Cause:   f.Cause,
		}
	}
	return err
}
